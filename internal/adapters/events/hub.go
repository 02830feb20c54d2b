// Package events pushes session lifecycle notifications to websocket
// subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrBackpressure = errors.New("subscriber backpressure")

// Event is the wire envelope for a session notification.
type Event struct {
	Type    string `json:"type"`
	State   string `json:"state,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Message string `json:"message,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) trySend(data []byte) error {
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
		_ = s.conn.Close()
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans events out to every connected subscriber. Slow subscribers get
// events dropped rather than stalling the publisher.
type Hub struct {
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("module", "events").Logger(),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish serializes the event once and delivers it to all subscribers.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("event marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if err := sub.trySend(data); err != nil {
			h.logger.Debug().Str("type", ev.Type).Msg("dropped event for slow subscriber")
		}
	}
}

// HandleSubscribe upgrades the request and keeps the subscriber registered
// until the socket closes or the context ends.
func (h *Hub) HandleSubscribe(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	sub := &subscriber{
		conn: ws,
		send: make(chan []byte, 32),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Msg("subscriber connected")

	ctx, cancel := context.WithCancel(ctx)
	go h.writePump(ctx, sub)
	go h.readPump(ctx, cancel, sub)
}

func (h *Hub) writePump(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.send:
			if !ok {
				return
			}
			if err := sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug().Err(err).Msg("subscriber write failed")
				return
			}
		}
	}
}

// readPump exists only to detect the close frame. Subscribers do not send
// commands over this socket.
func (h *Hub) readPump(ctx context.Context, cancel context.CancelFunc, sub *subscriber) {
	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		cancel()
		sub.close()
		h.logger.Debug().Msg("subscriber disconnected")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := sub.conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		sub.close()
		delete(h.subs, sub)
	}
}
