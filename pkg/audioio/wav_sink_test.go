package audioio

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/petrzlen/voiceclone-golang/pkg/audio_utils"
	"github.com/petrzlen/voiceclone-golang/pkg/protocol"
)

func TestPlayAudioChunksRoutineWritesWavFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink, err := NewWavFileSink(fs, "output")
	if err != nil {
		t.Fatalf("NewWavFileSink() error = %v", err)
	}

	chunks := make(chan protocol.AudioChunk, 3)
	chunks <- protocol.AudioChunk{Samples: []int16{100, -100, 200}, SampleRate: 16000}
	chunks <- protocol.AudioChunk{SampleRate: 16000}
	chunks <- protocol.AudioChunk{Samples: []int16{1, 2}, SampleRate: 16000}
	close(chunks)

	PlayAudioChunksRoutine(sink, chunks)

	buf, err := audio_utils.DecodeFile(fs, "output/response-1.wav")
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	want := []int{100, -100, 200}
	if len(buf.Data) != len(want) {
		t.Fatalf("Data = %v, want %v", buf.Data, want)
	}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Fatalf("Data = %v, want %v", buf.Data, want)
		}
	}
	if buf.Format.SampleRate != 16000 {
		t.Fatalf("SampleRate = %d, want 16000", buf.Format.SampleRate)
	}

	// The empty chunk is skipped, so the second file holds the third chunk.
	if _, err := fs.Stat("output/response-2.wav"); err != nil {
		t.Fatalf("second file missing: %v", err)
	}
	if _, err := fs.Stat("output/response-3.wav"); err == nil {
		t.Fatalf("empty chunk should not produce a file")
	}
}
