package server

import (
	"net/http"

	"musicbox/core/live"
	"musicbox/logger"

	"github.com/gorilla/websocket"
)

// LiveHandler upgrades GET /api/ws to a websocket that receives catalog events.
type LiveHandler struct {
	hub      *live.Hub
	upgrader websocket.Upgrader
}

// NewLiveHandler 创建实时推送处理器
func NewLiveHandler(hub *live.Hub) *LiveHandler {
	return &LiveHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	h.hub.Attach(conn)
}
