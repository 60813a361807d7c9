package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	routingKey string
	event      any
	err        error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.event = event
	return p.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewAuditEmitter(pub, "audit.groups", "chat-realtime", "test", discard())
	userID := int64(4)

	emitter.Emit(context.Background(), LevelInfo, "member added", "req-1", &userID, AuditPayload{GroupID: 9})

	assert.Equal(t, "audit.groups", pub.routingKey)
	env, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, LevelInfo, env.Payload.Level)
	assert.Equal(t, 9, env.Payload.GroupID)
	require.NotNil(t, env.UserID)
	assert.EqualValues(t, 4, *env.UserID)
}

func TestAuditEmitterNilIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), LevelError, "x", "", nil, AuditPayload{})
	})
}

func TestAuditEmitterSwallowsPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	emitter := NewAuditEmitter(pub, "audit.groups", "svc", "test", discard())
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), LevelError, "x", "", nil, AuditPayload{})
	})
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "chat-realtime", "", discard())
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}
