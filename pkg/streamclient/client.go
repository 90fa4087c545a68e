// Package streamclient is the client side of the /audio websocket. It keeps one
// connection, reconnects on its own and hands decoded audio to a sink.
package streamclient

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/voiceclone-golang/pkg/protocol"
)

var (
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNoConnection       = errors.New("no connection to the server")
	ErrClientClosed       = errors.New("client closed")
)

// AudioSink receives every audio frame in arrival order.
type AudioSink interface {
	HandleAudio(chunk protocol.AudioChunk)
}

type AudioSinkFunc func(chunk protocol.AudioChunk)

func (f AudioSinkFunc) HandleAudio(chunk protocol.AudioChunk) {
	f(chunk)
}

// Client owns at most one connection at a time. Every connection gets its own read
// pump from the moment it is dialed, so a drop is noticed even while nobody Listens.
// SendText may be called from any goroutine, frames reach the sink through Listen.
type Client struct {
	url    string
	dialer *websocket.Dialer
	policy ReconnectPolicy
	inbox  *inbox

	mu     sync.Mutex // guards conn and closed
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex // gorilla allows one concurrent writer
}

// New takes the server base url, e.g. ws://localhost:8000, and talks to its /audio endpoint.
func New(serverURL string, policy ReconnectPolicy) *Client {
	url := strings.TrimRight(serverURL, "/")
	if !strings.HasSuffix(url, protocol.AudioPath) {
		url += protocol.AudioPath
	}
	return &Client{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		policy: policy,
		inbox:  newInbox(),
	}
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ensureConn returns the current connection, dialing a new one if there is none.
func (c *Client) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}
	log.Debug().Str("url", c.url).Msg("dialing server")
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrNoConnection, "dial %s: %v", c.url, err)
	}
	log.Info().Str("url", c.url).Msg("connected to server")
	c.conn = conn
	go c.readPump(conn)
	return conn, nil
}

// drop forgets conn if it is still the current one and closes it. It reports
// whether conn was current; a connection replaced in the meantime is left alone.
func (c *Client) drop(conn *websocket.Conn) bool {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	dbg(conn.Close())
	return current
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) write(conn *websocket.Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	dbg(conn.SetWriteDeadline(time.Now().Add(10 * time.Second)))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// SendText sends one text frame. A missing or broken connection is replaced
// transparently, the write is retried once on the fresh connection.
func (c *Client) SendText(ctx context.Context, text string) error {
	payload, err := protocol.EncodeTextFrame(text)
	if err != nil {
		return errors.Wrap(err, "encode text frame")
	}

	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}
	if err = c.write(conn, payload); err == nil {
		return nil
	}
	log.Warn().Err(err).Msg("write failed, reconnecting once")
	c.drop(conn)

	conn, err = c.ensureConn(ctx)
	if err != nil {
		return err
	}
	if err := c.write(conn, payload); err != nil {
		c.drop(conn)
		return errors.Wrap(err, "write text frame")
	}
	return nil
}

// Listen delivers frames until ctx is done or the client is closed. Audio frames go
// to sink, error frames to onError (may be nil). Frames that arrived before Listen
// started are delivered first. Lost connections are re-dialed according to the
// reconnect policy; ErrReconnectExhausted is returned once the policy gives up.
func (c *Client) Listen(ctx context.Context, sink AudioSink, onError func(message string)) error {
	failures := 0
	backoff := func(cause error) error {
		failures++
		if c.policy.Exhausted(failures) {
			return errors.Wrapf(ErrReconnectExhausted, "after %d attempts, last error: %v", failures-1, cause)
		}
		wait := c.policy.Delay(failures)
		log.Warn().Err(cause).Int("failures", failures).Dur("retry_in", wait).Msg("connection lost, will retry")
		return sleep(ctx, wait)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.isClosed() {
			return nil
		}

		if r, ok := c.inbox.pop(); ok {
			if r.err != nil {
				if err := backoff(r.err); err != nil {
					return err
				}
				continue
			}
			failures = 0
			dispatch(r.msg, sink, onError)
			continue
		}

		if c.current() == nil {
			if err := sleep(ctx, c.policy.IdlePoll); err != nil {
				return err
			}
			if _, err := c.ensureConn(ctx); err != nil {
				if errors.Is(err, ErrClientClosed) {
					return nil
				}
				if err := backoff(err); err != nil {
					return err
				}
			}
			continue
		}

		select {
		case <-c.inbox.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func dispatch(msg []byte, sink AudioSink, onError func(message string)) {
	frame, err := protocol.ParseServerFrame(msg)
	if err != nil {
		log.Warn().Err(err).Int("size", len(msg)).Msg("ignoring unknown server frame")
		return
	}
	switch frame.Kind {
	case protocol.KindAudio:
		sink.HandleAudio(frame.Audio)
	case protocol.KindError:
		log.Warn().Str("server_error", frame.Error).Msg("server reported an error")
		if onError != nil {
			onError(frame.Error)
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close sends a close frame and releases the connection, Listen returns afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.inbox.wake()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	dbg(conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	c.writeMu.Unlock()
	return conn.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
