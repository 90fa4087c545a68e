package audio_utils

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// go-mp3 always decodes into interleaved S16LE stereo.
const mp3Channels = 2

// DecodeFile loads an audio file from fs, picking the decoder by extension.
// Unknown extensions are tried as WAV.
func DecodeFile(fs afero.Fs, path string) (*audio.IntBuffer, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read audio file %s", path)
	}
	if len(data) == 0 {
		return nil, errors.Errorf("audio file %s is empty", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return DecodeFromMp3(data)
	case ".flac":
		return DecodeFromFlac(data)
	default:
		return DecodeFromWav(data)
	}
}

func DecodeFromWav(data []byte) (*audio.IntBuffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode wav pcm data")
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(decoder.BitDepth)
	}
	if len(buf.Data) == 0 {
		return nil, errors.New("wav file has no samples")
	}
	return buf, nil
}

func DecodeFromMp3(data []byte) (*audio.IntBuffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "mp3.NewDecoder failed")
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read decoded mp3 stream")
	}
	if len(pcm) == 0 {
		return nil, errors.New("mp3 stream has no samples")
	}
	return &audio.IntBuffer{
		Data: twoByteDataToIntSlice(pcm),
		Format: &audio.Format{
			SampleRate:  decoder.SampleRate(),
			NumChannels: mp3Channels,
		},
		SourceBitDepth: 16,
	}, nil
}

func DecodeFromFlac(data []byte) (*audio.IntBuffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "flac.New failed")
	}
	defer func() { dbg(stream.Close()) }()

	numChannels := int(stream.Info.NChannels)
	var intData []int
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse flac frame")
		}
		if len(frame.Subframes) < numChannels {
			return nil, errors.Errorf("flac frame has %d subframes, want %d", len(frame.Subframes), numChannels)
		}
		// Subframes are planar, the buffer is interleaved.
		for i := range frame.Subframes[0].Samples {
			for ch := 0; ch < numChannels; ch++ {
				intData = append(intData, int(frame.Subframes[ch].Samples[i]))
			}
		}
	}
	if len(intData) == 0 {
		return nil, errors.New("flac stream has no samples")
	}
	return &audio.IntBuffer{
		Data: intData,
		Format: &audio.Format{
			SampleRate:  int(stream.Info.SampleRate),
			NumChannels: numChannels,
		},
		SourceBitDepth: int(stream.Info.BitsPerSample),
	}, nil
}
