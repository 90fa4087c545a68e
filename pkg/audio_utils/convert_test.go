package audio_utils

import (
	"math"
	"testing"

	"github.com/go-audio/audio"
	"github.com/spf13/afero"
)

func TestInt16BytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, math.MaxInt16, math.MinInt16, 100, -100, 200}
	data := Int16ToBytes(samples)
	if len(data) != 2*len(samples) {
		t.Fatalf("len(data) = %d, want %d", len(data), 2*len(samples))
	}
	// -1 is 0xFFFF little-endian.
	if data[4] != 0xFF || data[5] != 0xFF {
		t.Fatalf("bytes for -1 = %x %x, want ff ff", data[4], data[5])
	}

	got, err := BytesToInt16(data)
	if err != nil {
		t.Fatalf("BytesToInt16() error = %v", err)
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample[%d] = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestBytesToInt16RejectsOddLength(t *testing.T) {
	if _, err := BytesToInt16([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for odd-length payload")
	}
}

func TestFloatToInt16ClipsAndScales(t *testing.T) {
	got := FloatToInt16([]float32{0, 1, -1, 0.5, 2, -3, float32(math.NaN())})
	want := []int16{0, 32767, -32767, 16383, 32767, -32767, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FloatToInt16()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownmixToMonoAveragesChannels(t *testing.T) {
	buf := &audio.IntBuffer{
		Data:           []int{16384, 0, -16384, -16384, 32767, 32767},
		Format:         &audio.Format{SampleRate: 16000, NumChannels: 2},
		SourceBitDepth: 16,
	}
	got := DownmixToMono(buf)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if math.Abs(float64(got[0])-0.25) > 1e-4 {
		t.Fatalf("frame 0 = %v, want 0.25", got[0])
	}
	if math.Abs(float64(got[1])+0.5) > 1e-4 {
		t.Fatalf("frame 1 = %v, want -0.5", got[1])
	}
	if got[2] > 1 || got[2] < 0.99 {
		t.Fatalf("frame 2 = %v, want ~1", got[2])
	}
}

func TestDownmixToMonoEmpty(t *testing.T) {
	if got := DownmixToMono(nil); got != nil {
		t.Fatalf("DownmixToMono(nil) = %v, want nil", got)
	}
}

func TestWavEncodeDecodeThroughFs(t *testing.T) {
	samples := []int16{100, -100, 200, -200, 0}
	wavData, err := Int16SamplesToWav(samples, 22050)
	if err != nil {
		t.Fatalf("Int16SamplesToWav() error = %v", err)
	}

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "prompts/voice.wav", wavData, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	buf, err := DecodeFile(fs, "prompts/voice.wav")
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if buf.Format.SampleRate != 22050 || buf.Format.NumChannels != 1 {
		t.Fatalf("format = %+v, want 22050 Hz mono", buf.Format)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("len(data) = %d, want %d", len(buf.Data), len(samples))
	}
	for i, s := range samples {
		if buf.Data[i] != int(s) {
			t.Fatalf("data[%d] = %d, want %d", i, buf.Data[i], s)
		}
	}
}

func TestDecodeFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := DecodeFile(fs, "missing.wav"); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if err := afero.WriteFile(fs, "garbage.wav", []byte("definitely not riff"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := DecodeFile(fs, "garbage.wav"); err == nil {
		t.Fatalf("expected error for malformed wav")
	}
	if err := afero.WriteFile(fs, "garbage.mp3", []byte{0, 1, 2, 3}, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := DecodeFile(fs, "garbage.mp3"); err == nil {
		t.Fatalf("expected error for malformed mp3")
	}
}

func TestEmptyWavEncodingIsNoop(t *testing.T) {
	data, err := Int16SamplesToWav(nil, 16000)
	if err != nil || len(data) != 0 {
		t.Fatalf("Int16SamplesToWav(nil) = (%d bytes, %v), want (0, nil)", len(data), err)
	}
}
