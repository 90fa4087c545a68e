package protocol

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
)

func TestEncodeAudioEnvelope(t *testing.T) {
	wire := EncodeAudio([]int16{100, -100, 200}, 16000)
	if !strings.HasPrefix(wire, "data:audio/raw;base64,") {
		t.Fatalf("wire = %q, missing envelope prefix", wire)
	}
	// 100 = 0x0064, -100 = 0xFF9C, 200 = 0x00C8, little-endian.
	if want := "data:audio/raw;base64,ZACc/8gA"; wire != want {
		t.Fatalf("wire = %q, want %q", wire, want)
	}
}

func TestAudioRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cases := [][]int16{
		{},
		{0},
		{100, -100, 200},
		{math.MaxInt16, math.MinInt16, -1, 1},
	}
	random := make([]int16, 4096)
	for i := range random {
		random[i] = int16(rng.Intn(math.MaxUint16+1) - math.MaxInt16 - 1)
	}
	cases = append(cases, random)

	for _, rate := range []int{16000, 24000, 44100} {
		for _, samples := range cases {
			chunk, err := DecodeAudio(EncodeAudio(samples, rate))
			if err != nil {
				t.Fatalf("DecodeAudio() error = %v", err)
			}
			if len(chunk.Samples) != len(samples) {
				t.Fatalf("len = %d, want %d", len(chunk.Samples), len(samples))
			}
			for i := range samples {
				if chunk.Samples[i] != samples[i] {
					t.Fatalf("sample[%d] = %d, want %d", i, chunk.Samples[i], samples[i])
				}
			}
			if chunk.SampleRate != AssumedSampleRate {
				t.Fatalf("SampleRate = %d, want %d regardless of encoded rate %d", chunk.SampleRate, AssumedSampleRate, rate)
			}
		}
	}
}

func TestDecodeAudioRejectsGarbage(t *testing.T) {
	if _, err := DecodeAudio(`{"error":"x"}`); !errors.Is(err, ErrNotAudioFrame) {
		t.Fatalf("error = %v, want ErrNotAudioFrame", err)
	}
	if _, err := DecodeAudio(AudioEnvelopePrefix + "!!!not-base64"); err == nil {
		t.Fatalf("expected base64 error")
	}
	// Three bytes cannot hold whole int16 samples.
	if _, err := DecodeAudio(AudioEnvelopePrefix + "AQID"); err == nil {
		t.Fatalf("expected odd-length error")
	}
}

func TestParseTextFrame(t *testing.T) {
	frame, err := ParseTextFrame([]byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseTextFrame() error = %v", err)
	}
	if frame.Text != "hello" {
		t.Fatalf("Text = %q, want %q", frame.Text, "hello")
	}

	frame, err = ParseTextFrame([]byte(`{"other":1}`))
	if err != nil {
		t.Fatalf("ParseTextFrame() error = %v", err)
	}
	if frame.Text != "" {
		t.Fatalf("Text = %q, want empty for missing field", frame.Text)
	}

	if _, err := ParseTextFrame([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestParseServerFrame(t *testing.T) {
	audio, err := ParseServerFrame([]byte(EncodeAudio([]int16{1, 2}, 16000)))
	if err != nil {
		t.Fatalf("ParseServerFrame(audio) error = %v", err)
	}
	if audio.Kind != KindAudio || len(audio.Audio.Samples) != 2 {
		t.Fatalf("unexpected audio frame: %+v", audio)
	}

	raw, err := EncodeErrorFrame(NoReferenceAudioMessage)
	if err != nil {
		t.Fatalf("EncodeErrorFrame() error = %v", err)
	}
	if string(raw) != `{"error":"Please upload a reference audio file first."}` {
		t.Fatalf("error frame = %s", raw)
	}
	errFrame, err := ParseServerFrame(raw)
	if err != nil {
		t.Fatalf("ParseServerFrame(error) error = %v", err)
	}
	if errFrame.Kind != KindError || errFrame.Error != NoReferenceAudioMessage {
		t.Fatalf("unexpected error frame: %+v", errFrame)
	}

	for _, raw := range []string{`{"text":"hi"}`, `plain words`} {
		if _, err := ParseServerFrame([]byte(raw)); !errors.Is(err, ErrUnsupportedFrame) {
			t.Fatalf("ParseServerFrame(%q) error = %v, want ErrUnsupportedFrame", raw, err)
		}
	}
}
