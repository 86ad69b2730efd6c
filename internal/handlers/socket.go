package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are native apps sending no Origin header; browser-based
	// tooling goes through the same gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and runs the session until the
// client goes away. The room_id query hint is accepted but the
// registry derives the real association from the store.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed",
			zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}

	client := ws.NewClient(conn, h.log)
	roomID := h.registry.Attach(r.Context(), user, client)
	h.log.Info("websocket connected",
		zap.Int64("user_id", user.ID), zap.Int64("room_id", roomID))

	go client.WritePump()
	client.ReadPump(func(data []byte) {
		h.dispatch(r.Context(), user, client, data)
	})

	// The request context is tied to the dead connection; presence
	// bookkeeping runs on the gateway's own context.
	h.registry.Detach(h.baseCtx, user.ID, client)
	h.log.Info("websocket disconnected", zap.Int64("user_id", user.ID))
}
