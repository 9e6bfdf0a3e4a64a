// Package handler exposes the chat core over REST and upgrades WebSocket
// connections for the real-time gateway.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/auth"
	"shelterchat/backend/internal/chat"
	"shelterchat/backend/internal/chathub"
	"shelterchat/backend/internal/localization"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler holds the collaborators of every route.
type Handler struct {
	Chat     *chat.Service
	Gateway  *chathub.Gateway
	Resolver auth.Resolver
	Loc      *localization.Localizer
	Logger   *zap.Logger

	upgrader websocket.Upgrader
	checks   map[string]HealthCheck
}

func NewHandler(svc *chat.Service, gw *chathub.Gateway, resolver auth.Resolver, loc *localization.Localizer, logger *zap.Logger, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Chat:     svc,
		Gateway:  gw,
		Resolver: resolver,
		Loc:      loc,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		checks: make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a dependency probed by /healthz.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope is the body of every REST response.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

func (h *Handler) ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

// fail writes err as a localized error envelope and aborts the chain.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	code := apperr.CodeOf(err)
	if kind == apperr.KindInfrastructure {
		h.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)

	lang := h.Loc.Match(c.GetHeader("Accept-Language"))
	c.AbortWithStatusJSON(kind.HTTPStatus(), envelope{
		Error: &errorBody{Code: code, Message: h.Loc.GetString(lang, code)},
	})
}

var errBadParam = apperr.New(apperr.KindInvalidInput, "INVALID_REQUEST", "invalid request parameter")

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadParam
	}
	return id, nil
}

func optionalInt(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errBadParam
	}
	return &v, nil
}

// Healthz probes every registered dependency.
func (h *Handler) Healthz(c *gin.Context) {
	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, envelope{Success: healthy, Data: status})
}

func identity(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(auth.Identity)
	return id
}
