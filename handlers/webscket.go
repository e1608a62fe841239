package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc/panics"

	"keyrelay/config"
	"keyrelay/hub"
	"keyrelay/models"
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PongHandler correlates pong frames with outstanding pings.
type PongHandler interface {
	HandlePong(senderID, id string) bool
}

// Handler accepts the user and output websocket endpoints. Every connection
// gets its own session; the read loop of a connection runs on the request
// goroutine and owns the session until the peer goes away.
type Handler struct {
	hub    *hub.Hub
	pongs  PongHandler
	cfg    config.TransportConfig
	now    func() time.Time
	logger *slog.Logger
}

func NewHandler(h *hub.Hub, pongs PongHandler, cfg config.TransportConfig, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    h,
		pongs:  pongs,
		cfg:    cfg.WithDefaults(),
		now:    time.Now,
		logger: logger.With(slog.String("component", "handlers")),
	}
}

// Register mounts the two accept points on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/user", h.ServeUser)
	mux.HandleFunc("/ws/output", h.ServeOutput)
}

func (h *Handler) ServeUser(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", slog.Any("error", err))
		return
	}

	userID := hub.NewUserID()
	c := newClient(conn, h.cfg, h.logger.With(
		slog.String("remoteAddr", r.RemoteAddr),
		slog.String("userID", userID),
	))
	s := h.newUserSession(models.NewUser(userID, c, h.now()), c.logger)

	go c.writePump()
	s.start()
	c.readPump(func(frame []byte) { h.dispatch(s.logger, frame, s.handle) })
	s.close()
	c.close()
}

func (h *Handler) ServeOutput(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", slog.Any("error", err))
		return
	}

	clientID := hub.NewClientID()
	c := newClient(conn, h.cfg, h.logger.With(
		slog.String("remoteAddr", r.RemoteAddr),
		slog.String("clientID", clientID),
	))
	s := h.newOutputSession(models.NewOutputClient(clientID, c), c.logger)

	go c.writePump()
	s.start()
	c.readPump(func(frame []byte) { h.dispatch(s.logger, frame, s.handle) })
	s.close()
	c.close()
}

// dispatch decodes one frame and hands it to handle. Malformed frames are
// dropped and a panic while handling is confined to this frame.
func (h *Handler) dispatch(logger *slog.Logger, frame []byte, handle func(models.Message)) {
	msg, err := models.Decode(frame)
	if err != nil {
		logger.Debug("Ignoring malformed frame", slog.Any("error", err))
		return
	}

	var pc panics.Catcher
	pc.Try(func() { handle(msg) })
	if r := pc.Recovered(); r != nil {
		logger.Error("Message handler panicked",
			slog.String("type", string(msg.Kind())),
			slog.Any("panic", r.Value),
			slog.String("stack", string(r.Stack)),
		)
	}
}

// client is one websocket connection. Writes go through a buffered channel
// drained by writePump, so Send never blocks the caller.
type client struct {
	conn   *websocket.Conn
	cfg    config.TransportConfig
	logger *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, cfg config.TransportConfig, logger *slog.Logger) *client {
	return &client{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, cfg.SendBuffer),
	}
}

func (c *client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (c *client) readPump(onFrame func([]byte)) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("Connection closed unexpectedly", slog.Any("error", err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		onFrame(frame)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Write failed", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
