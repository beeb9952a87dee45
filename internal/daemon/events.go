package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/zhangyunhao116/skipmap"

	"cgmanager/internal/api"
	"cgmanager/internal/caspar"
	"cgmanager/internal/logging"
)

const (
	subscriberBuffer = 64
	eventWriteWait   = 5 * time.Second
	eventPingPeriod  = 30 * time.Second
	eventPongWait    = eventPingPeriod + 10*time.Second
)

// eventHub fans executor events out to WebSocket subscribers. Slow
// subscribers lose events rather than stalling the executor.
type eventHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	subs     *skipmap.StringMap[*subscriber]
}

type subscriber struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func newEventHub(logger *slog.Logger) *eventHub {
	return &eventHub{
		logger: logging.NewComponentLogger(logger, "events"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API binds to loopback by default and carries no credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: skipmap.NewString[*subscriber](),
	}
}

// publish is registered with the executor and runs on the goroutine that
// caused the event.
func (h *eventHub) publish(ev caspar.Event) {
	if h.subs.Len() == 0 {
		return
	}
	payload, err := json.Marshal(api.FromEvent(ulid.Make().String(), ev))
	if err != nil {
		h.logger.Debug("encode event failed", logging.Error(err))
		return
	}
	h.subs.Range(func(_ string, sub *subscriber) bool {
		select {
		case sub.send <- payload:
		case <-sub.done:
		default:
			if n := sub.dropped.Add(1); n == 1 || n%100 == 0 {
				logging.WarnWithContext(h.logger, "event subscriber too slow, dropping events", "event_dropped",
					logging.String("subscriber", sub.id),
					logging.Int64("dropped", sub.dropped.Load()),
					logging.String(logging.FieldImpact, "subscriber misses channel and effect updates"),
					logging.String(logging.FieldErrorHint, "reconnect and re-read /api/channels"))
			}
		}
		return true
	})
}

// serveWS upgrades the request and streams events until either side closes.
func (h *eventHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	sub := &subscriber{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan []byte, subscriberBuffer),
		done: make(chan struct{}),
	}
	h.subs.Store(sub.id, sub)
	h.logger.Debug("event subscriber connected",
		logging.String("subscriber", sub.id),
		logging.String("remote", r.RemoteAddr))

	go h.readLoop(sub)
	h.writeLoop(sub)
}

// readLoop discards client messages and notices disconnects. The writer
// closes the socket once done is closed, which unblocks ReadMessage.
func (h *eventHub) readLoop(sub *subscriber) {
	defer h.remove(sub)
	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(eventPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *eventHub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(eventPingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(sub)
		_ = sub.conn.Close()
	}()
	for {
		select {
		case <-sub.done:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			_ = sub.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case payload := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *eventHub) remove(sub *subscriber) {
	sub.once.Do(func() {
		h.subs.Delete(sub.id)
		close(sub.done)
		h.logger.Debug("event subscriber disconnected", logging.String("subscriber", sub.id))
	})
}

// close disconnects every subscriber. The hub accepts new subscribers
// afterwards.
func (h *eventHub) close() {
	h.subs.Range(func(_ string, sub *subscriber) bool {
		h.remove(sub)
		return true
	})
}

func (h *eventHub) count() int {
	return h.subs.Len()
}
