package audioio

import (
	"sync"
)

// OutputDevice plays mono signed 16-bit PCM.
type OutputDevice interface {
	// Play starts playback and returns a WaitGroup if a routine wants to block until done.
	Play(samples []int16, sampleRate int) (*sync.WaitGroup, error)
	Stop() error
}
