package websocket

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hanziquest/core"
	"hanziquest/realtime"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	bufferSize = 256
)

type options struct {
	log         *zap.Logger
	checkOrigin func(*http.Request) bool
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithAllowedOrigins restricts upgrades to the listed origins; "*" allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(o *options) {
		allowed := make(map[string]bool, len(origins))
		for _, v := range origins {
			allowed[v] = true
		}
		o.checkOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		}
	}
}

// Handler upgrades to WebSocket and streams events from the hub. The optional
// learner_id query parameter limits the stream to one learner.
func Handler(hub *realtime.Hub, opts ...Option) http.Handler {
	o := options{log: zap.NewNop(), checkOrigin: func(*http.Request) bool { return true }}
	for _, opt := range opts {
		opt(&o)
	}
	upgrader := gorillaws.Upgrader{CheckOrigin: o.checkOrigin}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		learner := core.LearnerID(r.URL.Query().Get("learner_id"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			o.log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()
		id, ch := hub.Subscribe(bufferSize, learner)
		defer hub.Unsubscribe(id)

		// The read loop only handles control frames and notices the peer leaving.
		closed := make(chan struct{})
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

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(gorillaws.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				return
			case <-r.Context().Done():
				return
			}
		}
	})
}
