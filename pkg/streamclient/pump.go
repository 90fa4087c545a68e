package streamclient

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// frames queued while nobody listens, the oldest go first beyond this
const maxPendingFrames = 256

// received is one server frame, or the error that ended a connection the server
// dropped.
type received struct {
	msg []byte
	err error
}

// inbox hands frames from the per-connection read pumps to Listen.
type inbox struct {
	mu     sync.Mutex
	frames []received
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (in *inbox) push(r received) {
	in.mu.Lock()
	if len(in.frames) >= maxPendingFrames {
		log.Warn().Int("pending", len(in.frames)).Msg("nobody is listening, dropping the oldest server frame")
		in.frames = in.frames[1:]
	}
	in.frames = append(in.frames, r)
	in.mu.Unlock()
	in.wake()
}

func (in *inbox) pop() (received, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.frames) == 0 {
		return received{}, false
	}
	r := in.frames[0]
	in.frames[0] = received{}
	in.frames = in.frames[1:]
	return r, true
}

func (in *inbox) wake() {
	select {
	case in.notify <- struct{}{}:
	default:
	}
}

// readPump is the only reader of conn. It runs from dial until the connection
// fails, then clears the client's handle so the next SendText or Listen redials.
func (c *Client) readPump(conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	if wait := c.policy.PongWait; wait > 0 {
		dbg(conn.SetReadDeadline(time.Now().Add(wait)))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wait))
		})
		go c.pingLoop(conn, done)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// A connection already dropped by Close or a failed write is not news.
			if c.drop(conn) {
				log.Info().Err(err).Msg("server connection lost")
				c.inbox.push(received{err: err})
			}
			return
		}
		if wait := c.policy.PongWait; wait > 0 {
			dbg(conn.SetReadDeadline(time.Now().Add(wait)))
		}
		c.inbox.push(received{msg: msg})
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.policy.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// WriteControl may run concurrently with WriteMessage.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				log.Debug().Err(err).Msg("ping failed, the read deadline will notice")
				return
			}
		}
	}
}
