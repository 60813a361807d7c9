package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/delivery"
	"chat-realtime/internal/telemetry"
)

// PublisherMock stands in for the AMQP publisher on both the delivery and the
// audit side.
type PublisherMock struct {
	mock.Mock
}

var (
	_ delivery.Publisher  = (*PublisherMock)(nil)
	_ telemetry.Publisher = (*PublisherMock)(nil)
)

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

// RoutingKeys lists the routing key of every Publish call in call order.
func (m *PublisherMock) RoutingKeys() []string {
	var keys []string
	for _, call := range m.Calls {
		if call.Method == "Publish" {
			keys = append(keys, call.Arguments.String(1))
		}
	}
	return keys
}
