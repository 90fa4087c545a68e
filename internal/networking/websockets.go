package networking

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebsocketMessageHandler usage:
// * Read from GetReader chan until closed (which means the other party closed it)
// * Write into GetWriter chan until you want - if you close it than the websocket will be closed gracefully.
//
// NOTE: This assumes the message encoding is websocket.TextMessage type (NOT websocket.Binary).
// TextMessage should cover most of the real-world cases, as these days everyone just sends JSON stuff.
type WebsocketMessageHandler interface {
	// GetReader is where websocket.ReadMessage will produce messages into UNTIL the websocket is closed,
	// then the Reader chan will be CLOSED, i.e. do NOT close this channel yourself as panic is a guaranteed.
	GetReader() chan<- []byte
	// GetWriter is where you can write response - upon channel close, or invalid message produced,
	// the websocket will attempt to close gracefully.
	GetWriter() <-chan []byte
}

// HandlerFactory creates one handler per accepted connection.
type HandlerFactory func(r *http.Request) WebsocketMessageHandler

type HubOptions struct {
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin  func(r *http.Request) bool
	ReadLimit    int64
	WriteTimeout time.Duration
	// OnMessage is called for every frame that crossed the wire, direction is "inbound" or "outbound".
	OnMessage func(direction string, msg []byte)
}

// Hub upgrades HTTP requests into websockets, pumps frames between the socket and the
// handler chans, and keeps track of live connections so they can all be closed on shutdown.
type Hub struct {
	upgrader websocket.Upgrader
	opts     HubOptions

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewHub(opts HubOptions) *Hub {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool {
			return true
		}
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		opts:  opts,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func getClientIpAddress(r *http.Request) (clientIP string) {
	// Get client IP from RemoteAddr
	clientIP = r.RemoteAddr

	// Check for real IP in headers (useful if behind proxy)
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		clientIP = realIP
	} else if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		clientIP = forwardedFor
	}
	return
}

// HandlerFunc takes the raw http reader / writer,
// and abstracts it into WebsocketMessageHandler which works at the chan []byte message level.
// It returns only after the handler closed its writer and the connection is released.
func (h *Hub) HandlerFunc(createHandler HandlerFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIpAddress(r)
		log.Info().Str("client_ip", clientIP).Str("method", r.Method).Str("request_url", r.URL.String()).Msg("attempting to establish a websocket connection")

		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied to the client.
			errLog(err, "websocket upgrader.Upgrade")
			return
		}
		if !h.track(ws) {
			log.Warn().Str("client_ip", clientIP).Msg("hub is shutting down, refusing websocket")
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			dbg(ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
			dbg(ws.Close())
			return
		}
		defer h.untrack(ws)
		// Released on every exit path, including panics in the handler goroutines' callers.
		defer func() { dbg(ws.Close()) }()

		handler := createHandler(r)
		reader := handler.GetReader()

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			h.writeLoop(ws, handler.GetWriter())
		}()

		if h.opts.ReadLimit > 0 {
			ws.SetReadLimit(h.opts.ReadLimit)
		}
		log.Debug().Str("client_ip", clientIP).Msg("starting to read from the websocket")
		for {
			msgType, msg, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseGoingAway) {
					log.Info().Str("client_ip", clientIP).Msg("websocket connection closed normally from the other party")
				} else {
					log.Info().Err(err).Str("client_ip", clientIP).Msg("websocket read ended")
				}
				// Usually, nothing good will happen ever after a bad websocket message
				break
			}
			if msgType != websocket.TextMessage {
				log.Warn().Int("message_type", msgType).Msg("ignoring non-text websocket message")
				continue
			}
			if h.opts.OnMessage != nil {
				h.opts.OnMessage("inbound", msg)
			}
			reader <- msg
		}

		close(reader)
		// The handler finishes whatever it is doing, then closes its writer.
		<-writerDone
		log.Info().Str("client_ip", clientIP).Msg("websocket connection released")
	}
}

// writeLoop is the only writer of ws. After a failed write it keeps draining the
// writer chan so the handler never blocks on a dead connection.
func (h *Hub) writeLoop(ws *websocket.Conn, writer <-chan []byte) {
	broken := false
	for msg := range writer {
		if broken {
			continue
		}
		dbg(ws.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)))
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Info().Msg("websocket too late to write message, as already closed")
			} else {
				errLog(err, "ws.WriteMessage")
			}
			broken = true
			// Unblocks the read loop.
			dbg(ws.Close())
			continue
		}
		if h.opts.OnMessage != nil {
			h.opts.OnMessage("outbound", msg)
		}
	}
	if broken {
		return
	}
	// Channel closed by the handler, attempt to close connection gracefully.
	log.Debug().Msg("websocket writer channel closed, attempting to close connection gracefully")
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	dbg(ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
}

func (h *Hub) track(ws *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[ws] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) untrack(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, ws)
	h.mu.Unlock()
	h.wg.Done()
}

// Active is the number of live connections.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown refuses new connections, closes all live ones, and waits until their
// handlers returned or ctx is done. In-flight generations are not interrupted, a
// handler returns once its current request finished.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for ws := range h.conns {
		conns = append(conns, ws)
	}
	h.mu.Unlock()

	log.Info().Int("connections", len(conns)).Msg("closing all websocket connections")
	for _, ws := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		dbg(ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
		dbg(ws.Close())
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errLog(err error, what string) {
	if err != nil {
		log.Error().Err(err).Msg(what)
		log.Trace().Msg(string(debug.Stack()))
	}
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
