package streamclient

import (
	"math"
	"time"
)

// ReconnectPolicy decides how long the listener waits before dialing again.
// The zero value of MaxAttempts means retry forever.
type ReconnectPolicy struct {
	// RetryInterval is the wait after a connection closed or a dial failed.
	RetryInterval time.Duration
	// IdlePoll is the wait before dialing when there is no connection at all.
	IdlePoll    time.Duration
	MaxAttempts int
	// Multiplier above 1 grows the wait per consecutive failure, capped by MaxInterval.
	Multiplier  float64
	MaxInterval time.Duration
	// PongWait drops a connection that delivered neither a frame nor a pong for
	// this long. Pings go out every 9/10 of it. Zero turns the keepalive off.
	PongWait time.Duration
}

// DefaultReconnectPolicy is a fixed 2s retry with a 1s idle poll, forever.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		RetryInterval: 2 * time.Second,
		IdlePoll:      time.Second,
		Multiplier:    1,
		MaxInterval:   30 * time.Second,
		PongWait:      60 * time.Second,
	}
}

// Delay is the wait after the given number of consecutive failures, starting at 1.
func (p ReconnectPolicy) Delay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := p.RetryInterval
	if p.Multiplier > 1 {
		d = time.Duration(float64(d) * math.Pow(p.Multiplier, float64(failures-1)))
	}
	if p.MaxInterval > 0 && (d > p.MaxInterval || d < 0) {
		d = p.MaxInterval
	}
	return d
}

func (p ReconnectPolicy) pingPeriod() time.Duration {
	if d := p.PongWait * 9 / 10; d > 0 {
		return d
	}
	return time.Millisecond
}

func (p ReconnectPolicy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures > p.MaxAttempts
}
