package debug

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Debug surface only; no cross-origin browser client is expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newVersionStreamHandler upgrades to a websocket and pushes the current
// version key set every time catalog broadcasts a change, until the
// client disconnects or the request context is cancelled.
func newVersionStreamHandler(catalog CatalogView, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		updates := catalog.Subscribe()
		ctx := r.Context()

		for {
			select {
			case <-ctx.Done():
				return
			case keys, ok := <-updates:
				if !ok {
					return
				}
				if err := conn.WriteJSON(keys); err != nil {
					logger.Debug("websocket write failed, closing stream", zap.Error(err))
					return
				}
			}
		}
	}
}
