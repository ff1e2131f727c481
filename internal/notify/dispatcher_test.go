package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Deliver(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestDispatch_ContinuesAfterFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	transport := new(mockTransport)
	transport.On("Deliver", mock.Anything, mock.MatchedBy(func(m Message) bool { return m.Recipient == 2 })).
		Return(errors.New("bot was blocked by the user"))
	transport.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(transport, zap.New(core))
	rep := d.Dispatch(context.Background(), []Message{
		{Recipient: 1, Kind: KindInvite},
		{Recipient: 2, Kind: KindInvite},
		{Recipient: 3, Kind: KindInvite},
	})

	assert.Equal(t, Report{Sent: 2, Failed: 1}, rep)
	transport.AssertNumberOfCalls(t, "Deliver", 3)
	assert.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())
}

func TestDispatch_CancelledContextSkipsDelivery(t *testing.T) {
	transport := new(mockTransport)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := NewDispatcher(transport, nil).Dispatch(ctx, []Message{{Recipient: 1}, {Recipient: 2}})

	assert.Equal(t, Report{Failed: 2}, rep)
	transport.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestDispatch_Empty(t *testing.T) {
	rep := NewDispatcher(new(mockTransport), nil).Dispatch(context.Background(), nil)
	assert.Equal(t, Report{}, rep)
}
