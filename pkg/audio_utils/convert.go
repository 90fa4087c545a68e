package audio_utils

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultSampleRate is what the generation side reports when it has nothing better,
// and what the client side assumes for every received frame.
const DefaultSampleRate = 16000

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}

// Int16ToBytes serializes samples as little-endian 16-bit PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// BytesToInt16 reinterprets little-endian 16-bit PCM bytes as samples.
func BytesToInt16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, errors.Errorf("pcm16 payload has odd byte length %d", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out, nil
}

// FloatToInt16 maps a nominal [-1.0, 1.0] waveform onto the int16 domain.
// Values outside the nominal range are clipped rather than wrapped.
func FloatToInt16(waveform []float32) []int16 {
	out := make([]int16, len(waveform))
	for i, v := range waveform {
		f := float64(v)
		if math.IsNaN(f) {
			f = 0
		}
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		out[i] = int16(f * math.MaxInt16)
	}
	return out
}

// DownmixToMono averages interleaved channels and scales the result into [-1.0, 1.0]
// according to the buffer's source bit depth.
func DownmixToMono(buf *audio.IntBuffer) []float32 {
	if buf == nil || len(buf.Data) == 0 {
		return nil
	}
	numChannels := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		numChannels = buf.Format.NumChannels
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	// 8-bit PCM is unsigned.
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / numChannels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < numChannels; ch++ {
			sum += buf.Data[i*numChannels+ch] - offset
		}
		out[i] = float32(float64(sum) / float64(numChannels) / scale)
	}
	return out
}

// ConvertTwoByteSamplesToWav assumes S16 encoding (or two bytes per value)
func ConvertTwoByteSamplesToWav(byteData []byte, sampleRate uint32, numChannels uint32) (result []byte, err error) {
	intData := twoByteDataToIntSlice(byteData)

	// For most parameters, we just do the same in both input and output.
	inputBuffer := &audio.IntBuffer{
		Data: intData,
		Format: &audio.Format{
			SampleRate:  int(sampleRate),
			NumChannels: int(numChannels),
		},
		SourceBitDepth: 16,
	}

	audioFormat := 1
	return convertIntSamplesToWav(inputBuffer, sampleRate, numChannels, audioFormat)
}

// Int16SamplesToWav wraps mono samples into a 16-bit PCM WAV container.
func Int16SamplesToWav(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return ConvertTwoByteSamplesToWav(Int16ToBytes(samples), uint32(sampleRate), 1)
}

func convertIntSamplesToWav(inputBuffer *audio.IntBuffer, sampleRate uint32, numChannels uint32, audioFormat int) (result []byte, err error) {
	if len(inputBuffer.Data) == 0 {
		return // Nothing to do
	}

	// Create a new in-memory file system
	fs := afero.NewMemMapFs()
	// Create an in-memory file to support io.WriteSeeker needed for NewEncoder which is needed for finalizing headers.
	inMemoryFilename := "in-memory-output.wav"
	inMemoryFile, err := fs.Create(inMemoryFilename)
	if err != nil {
		err = errors.Wrap(err, "cannot create in-memory wav file")
		return
	}
	// We will call Close ourselves.

	outputBitDepth := 16
	iSampleRate := int(sampleRate)
	iNumChannels := int(numChannels)
	wavEncoder := wav.NewEncoder(inMemoryFile, iSampleRate, outputBitDepth, iNumChannels, audioFormat)
	log.Trace().Int("int_data_length", len(inputBuffer.Data)).Int("sample_rate", iSampleRate).Int("source_bit_depth", inputBuffer.SourceBitDepth).Int("num_channels", iNumChannels).Msg("encoding int stream output as a wav")
	if err = wavEncoder.Write(inputBuffer); err != nil {
		err = errors.Wrap(err, "cannot encode byte output as wav")
		return
	}

	// Close the wavEncoder to flush any remaining data and finalize the WAV file
	if err = wavEncoder.Close(); err != nil {
		err = errors.Wrap(err, "cannot finish wav encoding")
		return
	}

	// We close and re-open the file so we can properly read-all of its contents.
	dbg(inMemoryFile.Close())
	inMemoryFileReopen, err := fs.Open(inMemoryFilename)
	if err != nil {
		err = errors.Wrap(err, "cannot reopen in-memory wav file")
		return
	}
	defer func() { dbg(inMemoryFileReopen.Close()) }()
	result, err = io.ReadAll(inMemoryFileReopen)
	if err == nil && len(result) == 0 {
		err = errors.New("wav output is empty when input was not")
	}
	return
}

func twoByteDataToIntSlice(audioData []byte) []int {
	intData := make([]int, len(audioData)/2)
	for i := 0; i+1 < len(audioData); i += 2 {
		intData[i/2] = int(int16(binary.LittleEndian.Uint16(audioData[i : i+2])))
	}
	return intData
}
