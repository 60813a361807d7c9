// Package ws is the websocket transport: one Client and one Session per connection.
package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chat-realtime/internal/middleware"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/telemetry"
)

const metricsKind = "chat"

// Handler upgrades HTTP requests and runs a session per connection.
type Handler struct {
	engine   Engine
	registry *presence.Registry
	rooms    *presence.Rooms
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler.
func NewHandler(engine Engine, registry *presence.Registry, rooms *presence.Rooms, cfg Config, log *slog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		registry: registry,
		rooms:    rooms,
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves GET /ws. X-User-ID is optional; when present the session only
// accepts user_connected for that user.
func (h *Handler) Handle(c *gin.Context) {
	claimed := 0
	if raw := c.GetHeader(middleware.HeaderUserID); raw != "" {
		id, err := middleware.ParseUserID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user identity"})
			return
		}
		claimed = id
	}

	ctx, span := telemetry.Tracer("chat-realtime/ws").Start(c.Request.Context(), "ws.handshake")
	traceID := span.SpanContext().TraceID().String()
	span.End()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	info := newConnInfo(c.Request, claimed, traceID)
	log := h.log.With(info.logAttrs()...)
	client := NewClient(conn, info, h.cfg, log)
	session := NewSession(client, h.engine, h.registry, h.rooms, claimed, log)

	observability.IncWSActive(metricsKind)
	observability.IncWSEvent(metricsKind, "ws_connect")
	log.Info("websocket connected")

	go client.WritePump()
	err = client.ReadPump(func(raw []byte) {
		observability.IncWSEvent(metricsKind, "ws_frame")
		session.Receive(ctx, raw)
	})

	session.Close()
	observability.DecWSActive(metricsKind)
	observability.IncWSEvent(metricsKind, "ws_disconnect")
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		observability.IncWSEvent(metricsKind, "ws_error")
	}
	log.Info("websocket disconnected",
		"user_id", session.UserID(),
		"duration_ms", time.Since(info.ConnectedAt).Milliseconds(),
		"reason", err,
	)
}
