package audioio

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/petrzlen/voiceclone-golang/pkg/protocol"
)

// PlayAudioChunksRoutine plays chunks one after another until the chan is closed.
// A chunk that fails to play is skipped.
func PlayAudioChunksRoutine(outputDevice OutputDevice, chunks <-chan protocol.AudioChunk) {
	log.Info().Msgf("playAudioChunksRoutine started")

	i := 0
	for chunk := range chunks {
		i += 1
		if len(chunk.Samples) == 0 {
			log.Debug().Int("num", i).Msg("skipping empty chunk")
			continue
		}
		startTime := time.Now()

		waitTilDone, err := outputDevice.Play(chunk.Samples, chunk.SampleRate)
		if err != nil {
			log.Error().Err(err).Int("num", i).Msg("cannot play audio chunk")
			continue
		} else if waitTilDone != nil {
			waitTilDone.Wait()
		}

		log.Debug().Int("num", i).Dur("duration", time.Since(startTime)).Msg("player DONE")
	}
	log.Info().Int("chunks", i).Msgf("playAudioChunksRoutine finished")
}
