package httpserver

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"go.uber.org/zap"
)

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe() (<-chan eventbus.Event, func())
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// streamHandler pushes every bus event to websocket observers as JSON.
// Observers are not required for correctness; a slow one loses events.
type streamHandler struct {
	events   Subscriber
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func newStreamHandler(events Subscriber, logger *zap.Logger) *streamHandler {
	return &streamHandler{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket-upgrade-failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.events.Subscribe()
	defer cancel()

	StreamClients.Inc()
	defer StreamClients.Dec()
	h.logger.Debug("stream-client-connected", zap.String("remote-addr", r.RemoteAddr))

	// The read pump only services control frames and detects disconnects.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("stream-client-disconnected", zap.String("remote-addr", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				h.logger.Warn("failed-to-encode-event", zap.String("event-type", evt.Type), zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			StreamMessagesTotal.WithLabelValues(evt.Type).Inc()
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
