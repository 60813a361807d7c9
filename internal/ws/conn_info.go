package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"chat-realtime/internal/observability"
)

// ConnInfo is the handshake metadata of a connection. UserID is the
// gateway-asserted user and stays 0 when the handshake carried none.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, userID int, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now().UTC(),
	}
}

func (i ConnInfo) logAttrs() []any {
	return []any{
		"conn_id", i.ConnID,
		"device_id", i.DeviceID,
		"ip", i.IP,
		"request_id", i.RequestID,
		"trace_id", i.TraceID,
	}
}
