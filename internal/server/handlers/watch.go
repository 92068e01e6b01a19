package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/spoolwatch/internal/errors"
	"github.com/3leaps/spoolwatch/pkg/eventlog"
	"github.com/3leaps/spoolwatch/pkg/monitor"
	"github.com/3leaps/spoolwatch/pkg/spool"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	errSendBufferFull = errors.New("websocket send buffer full")
	errClientClosed   = errors.New("websocket client closed")
)

// WatchHandler streams lifecycle events for one device over a WebSocket.
// Each connection runs its own monitor session; messages are the same JSONL
// records the CLI writes, one per text frame.
type WatchHandler struct {
	reader   *spool.Reader
	observer monitor.Observer
	logger   *zap.Logger
	defaults monitor.Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*watchClient]struct{}
}

// NewWatchHandler creates a handler whose sessions read through reader.
// defaults supplies interval, stop grace and read error policy when the
// request does not override them.
func NewWatchHandler(reader *spool.Reader, observer monitor.Observer, logger *zap.Logger, defaults monitor.Options) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchHandler{
		reader:   reader,
		observer: observer,
		logger:   logger,
		defaults: defaults,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*watchClient]struct{}),
	}
}

type watchClient struct {
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

// Write queues one JSONL record as a text frame. A slow client loses the
// record rather than stalling the session loop.
func (c *watchClient) Write(p []byte) (int, error) {
	msg := make([]byte, len(p))
	copy(msg, p)
	select {
	case <-c.done:
		return 0, errClientClosed
	case c.send <- msg:
		return len(p), nil
	default:
		return 0, errSendBufferFull
	}
}

func (c *watchClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// ServeHTTP handles GET /devices/{name}/watch?jobs=5,7&interval=2s&watch_device=false.
func (h *WatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts, err := h.options(r)
	if err != nil {
		respondWithError(w, r, apperrors.NewBadRequest(err.Error()))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("device", opts.Device), zap.Error(err))
		return
	}

	// The session outlives the handler's request context but keeps its values.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	client := &watchClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.track(client, true)

	sess := monitor.NewSession(h.reader, h.logger.With(zap.String("device", opts.Device)), h.observer)
	if err := sess.Start(ctx, opts, eventlog.NewWriter(client, "")); err != nil {
		h.logger.Warn("Watch session failed to start", zap.String("device", opts.Device), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()), time.Now().Add(writeWait))
		client.close()
		h.track(client, false)
		_ = conn.Close()
		return
	}
	h.logger.Info("WebSocket watch connected", zap.String("device", opts.Device), zap.String("session_id", sess.Info().ID))

	go client.writePump()
	go func() {
		client.readPump()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), opts.StopGrace+time.Second)
		if err := sess.Stop(stopCtx); err != nil {
			h.logger.Warn("Watch session stop", zap.String("device", opts.Device), zap.Error(err))
		}
		stopCancel()
		client.close()
		h.track(client, false)
		h.logger.Info("WebSocket watch disconnected", zap.String("device", opts.Device))
	}()
}

// Close disconnects every client.
func (h *WatchHandler) Close() {
	h.mu.Lock()
	clients := make([]*watchClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// Clients returns the number of connected clients.
func (h *WatchHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WatchHandler) track(c *watchClient, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		h.clients[c] = struct{}{}
	} else {
		delete(h.clients, c)
	}
}

func (h *WatchHandler) options(r *http.Request) (monitor.Options, error) {
	opts := h.defaults
	opts.Device = chi.URLParam(r, "name")
	if opts.Device == "" {
		return opts, monitor.ErrNoDevice
	}
	q := r.URL.Query()

	if raw := q.Get("jobs"); raw != "" {
		var ids []int
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || id <= 0 {
				return opts, fmt.Errorf("invalid job id %q", part)
			}
			ids = append(ids, id)
		}
		opts.Scope = monitor.Jobs(ids...)
	}
	if raw := q.Get("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return opts, fmt.Errorf("invalid interval %q", raw)
		}
		opts.Interval = d
	}
	if raw := q.Get("watch_device"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid watch_device %q", raw)
		}
		opts.WatchDevice = v
	}
	return opts, nil
}

func (c *watchClient) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *watchClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
