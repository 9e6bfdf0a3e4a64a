package handler

import (
	"shelterchat/backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires every route of the service.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), Metrics())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", h.ServeWebSocket)

	v1 := r.Group("/v1/chat", h.RequireAuth())
	{
		v1.POST("/private", h.CreatePrivateRoom)

		v1.POST("/groups", h.CreateGroupRoom)
		v1.GET("/groups", h.ListGroupRooms)
		v1.POST("/groups/:roomId/join", h.JoinGroupRoom)

		v1.GET("/rooms/me", h.ListMyRooms)
		v1.GET("/rooms/:roomId", h.GetRoom)
		v1.DELETE("/rooms/:roomId", h.LeaveRoom)
		v1.GET("/rooms/:roomId/messages", h.FetchHistory)
		v1.POST("/rooms/:roomId/messages", h.SendMessage)
		v1.POST("/rooms/:roomId/read", h.MarkRead)
	}
	return r
}
