package widget

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	readLimit    = 4096
	sendBuffer   = 16
	tokenHeader  = "X-Control-Token"
	tokenQuery   = "token"
	defaultThumb = 256
)

// Player is the part of the playback controller widget taps drive.
type Player interface {
	TogglePlayPause(ctx context.Context) error
	PlayNext(ctx context.Context) error
	PlayPrevious(ctx context.Context) error
}

// Config holds widget hub settings.
type Config struct {
	ThumbnailPx uint   // Artwork thumbnail edge length
	Token       string // Required from clients when set
}

// client is one connected widget.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Hub pushes widget views to connected widgets and handles their taps.
type Hub struct {
	player   Player
	config   Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte // Encoded view of the latest snapshot
	thumbs  thumbnailer
	closed  bool
}

// NewHub creates a widget hub.
func NewHub(player Player, config Config) *Hub {
	if config.ThumbnailPx == 0 {
		config.ThumbnailPx = defaultThumb
	}
	h := &Hub{
		player:  player,
		config:  config,
		clients: make(map[*client]struct{}),
		thumbs:  thumbnailer{size: config.ThumbnailPx},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	h.last = h.encode(buildView(playback.Snapshot{State: playback.StateIdle, Index: -1}, nil))
	return h
}

// Name returns the sink name.
func (h *Hub) Name() string {
	return "widget"
}

// Update broadcasts the widget view of snap to every widget.
func (h *Hub) Update(_ context.Context, snap playback.Snapshot) error {
	h.mu.Lock()
	view := buildView(snap, h.thumbs.get(snap))
	data := h.encode(view)
	if data == nil {
		h.mu.Unlock()
		return errors.New("failed to encode widget view")
	}
	h.last = data
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.enqueue(data)
	}
	return nil
}

// ServeHTTP upgrades the request to a widget connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "invalid control token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("widget: upgrade failed")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	last := h.last
	h.mu.Unlock()

	zlog.Info().Msgf("widget: connected: remote=%s clients=%d", r.RemoteAddr, h.ClientCount())

	c.enqueue(last)
	go c.writePump()
	c.readPump(r.Context())
}

// ClientCount returns the number of connected widgets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every widget.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
	return nil
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.config.Token == "" {
		return true
	}
	token := r.Header.Get(tokenHeader)
	if token == "" {
		token = r.URL.Query().Get(tokenQuery)
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.config.Token)) == 1
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

func (h *Hub) encode(v View) []byte {
	msg := newMessage(MsgTypeView)
	msg.View = &v
	data, err := json.Marshal(msg)
	if err != nil {
		zlog.Error().Err(err).Msg("widget: failed to encode view")
		return nil
	}
	return data
}

// handle runs a client message.
func (h *Hub) handle(ctx context.Context, c *client, msg Message) {
	switch msg.Type {
	case MsgTypePing:
		c.reply(newMessage(MsgTypePong))
		return
	case MsgTypeAction:
	default:
		c.replyError(errors.Newf("unknown message type: %s", msg.Type))
		return
	}

	var err error
	switch msg.Action {
	case ActionPlayPause:
		err = h.player.TogglePlayPause(ctx)
	case ActionSkipNext:
		err = h.player.PlayNext(ctx)
	case ActionSkipPrevious:
		err = h.player.PlayPrevious(ctx)
	case ActionOpen:
		c.enqueue(h.latest())
	default:
		err = errors.Newf("unknown action: %s", msg.Action)
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("widget: action %s failed", msg.Action)
		c.replyError(err)
	}
}

// readPump reads taps until the connection fails.
func (c *client) readPump(ctx context.Context) {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn().Err(err).Msg("widget: read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.replyError(errors.Wrap(err, "invalid message"))
			continue
		}
		c.hub.handle(context.WithoutCancel(ctx), c, msg)
	}
}

// writePump writes queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues data, dropping it when the widget is too slow.
func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		zlog.Debug().Msg("widget: slow client, message dropped")
	}
}

func (c *client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *client) replyError(err error) {
	msg := newMessage(MsgTypeError)
	msg.Error = err.Error()
	c.reply(msg)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
