package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Session identity is established by the marketplace in front of this
	// service; the endpoint itself is origin-agnostic.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// Handler bridges hub subscriptions onto websocket connections. Each
// connection is one session: subscribe on upgrade, unsubscribe on close.
func Handler(hub *Hub, pingInterval time.Duration, logger zerolog.Logger) http.HandlerFunc {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	log := logger.With().Str("component", "realtime_ws").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			userID = r.URL.Query().Get("user")
		}
		if userID == "" {
			http.Error(w, "user identity required", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		sub := hub.Subscribe(userID)
		done := make(chan struct{})

		// Reader exists only to observe the close handshake.
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			defer func() {
				hub.Unsubscribe(sub)
				_ = conn.Close()
			}()

			ping := time.NewTicker(pingInterval)
			defer ping.Stop()

			for {
				select {
				case <-done:
					return
				case event, ok := <-sub.Events():
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteJSON(event); err != nil {
						log.Debug().Err(err).Str("user_id", userID).Msg("websocket write failed")
						return
					}
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()
	}
}
