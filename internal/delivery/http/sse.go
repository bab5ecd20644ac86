package http

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"pointview/internal/usecase"
)

type SSEConfig struct {
	CORS string
}

// Hub fans scenes out to every connected viewer. A viewer that falls
// behind misses scenes instead of blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan usecase.Scene
	buffer      int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subscribers: make(map[string]chan usecase.Scene), buffer: buffer}
}

// Subscribe registers a viewer and returns its id and channel.
func (h *Hub) Subscribe() (string, <-chan usecase.Scene) {
	id := uuid.NewString()
	ch := make(chan usecase.Scene, h.buffer)
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes the viewer and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Publish delivers the scene to every viewer with room for it and returns
// how many received it.
func (h *Hub) Publish(scene usecase.Scene) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.subscribers {
		select {
		case ch <- scene:
			delivered++
		default:
		}
	}
	return delivered
}

// Len returns the number of connected viewers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func RegisterSSEHandler(e *echo.Echo, config SSEConfig, hub *Hub, log logrus.FieldLogger) {
	e.GET("/sse", func(c echo.Context) error {
		remote := c.Request().RemoteAddr
		c.Response().Header().Set("Content-Type", "text/event-stream")
		c.Response().Header().Set("Cache-Control", "no-cache")
		c.Response().Header().Set("Connection", "keep-alive")
		if config.CORS != "" {
			c.Response().Header().Set("Access-Control-Allow-Origin", config.CORS)
		}
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "Streaming unsupported")
		}

		id, scenes := hub.Subscribe()
		defer hub.Unsubscribe(id)
		log.WithFields(logrus.Fields{"viewer": id, "remote": remote}).Info("SSE viewer connected")

		c.Response().WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(c.Response(), "event: hello\ndata: %q\n\n", id)
		flusher.Flush()

		for {
			select {
			case scene, ok := <-scenes:
				if !ok {
					return nil
				}
				data, err := json.Marshal(scene)
				if err != nil {
					log.WithError(err).Warn("SSE scene encode failed")
					continue
				}
				if _, err := fmt.Fprintf(c.Response(), "event: scene\ndata: %s\n\n", data); err != nil {
					return nil
				}
				flusher.Flush()
			case <-c.Request().Context().Done():
				log.WithField("viewer", id).Info("SSE viewer disconnected")
				return nil
			}
		}
	})
}
