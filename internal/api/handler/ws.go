package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServeWebSocket upgrades the connection and hands it to the gateway.
// Authentication happens with the CONNECT frame.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	lang := h.Loc.Match(c.GetHeader("Accept-Language"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.Logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.Gateway.Serve(c.Request.Context(), conn, lang)
}
