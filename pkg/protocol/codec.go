package protocol

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"

	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
)

const (
	AudioMIMEType       = "audio/raw"
	AudioEnvelopePrefix = "data:" + AudioMIMEType + ";base64,"

	// AssumedSampleRate is baked into both ends, the envelope does not carry a rate.
	// A model reporting any other rate plays back mis-pitched on the client.
	AssumedSampleRate = audio_utils.DefaultSampleRate
)

var ErrNotAudioFrame = errors.New("not an audio frame")

// AudioChunk is one decoded audio frame.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
}

// EncodeAudio renders samples as the audio envelope. sampleRate is accepted for
// symmetry with the generation result but is not transmitted.
func EncodeAudio(samples []int16, sampleRate int) string {
	payload := base64.StdEncoding.EncodeToString(audio_utils.Int16ToBytes(samples))
	return AudioEnvelopePrefix + payload
}

// DecodeAudio is the inverse of EncodeAudio, the returned rate is always AssumedSampleRate.
func DecodeAudio(wire string) (AudioChunk, error) {
	if !strings.HasPrefix(wire, AudioEnvelopePrefix) {
		return AudioChunk{}, ErrNotAudioFrame
	}
	raw, err := base64.StdEncoding.DecodeString(wire[len(AudioEnvelopePrefix):])
	if err != nil {
		return AudioChunk{}, errors.Wrap(err, "invalid base64 audio payload")
	}
	samples, err := audio_utils.BytesToInt16(raw)
	if err != nil {
		return AudioChunk{}, err
	}
	return AudioChunk{Samples: samples, SampleRate: AssumedSampleRate}, nil
}
