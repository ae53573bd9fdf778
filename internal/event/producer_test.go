package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-checkout/internal/domain"
	pkgkafka "github.com/utafrali/storefront-checkout/pkg/kafka"
	"github.com/utafrali/storefront-checkout/pkg/logger"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishStepAdvanced(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, newTestLogger())
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	var sent *pkgkafka.Event
	pub.On("Publish", ctx, "storefront.checkout.step_advanced", mock.AnythingOfType("*kafka.Event")).
		Run(func(args mock.Arguments) { sent = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	flow := &domain.CheckoutFlow{ID: "flow-1", CustomerID: "cust-1", Step: domain.StepShippingAddress, Epoch: 2}
	require.NoError(t, p.PublishStepAdvanced(ctx, flow, domain.StepContactInfo))

	require.NotNil(t, sent)
	assert.Equal(t, "flow-1", sent.AggregateID)
	assert.Equal(t, AggregateTypeFlow, sent.AggregateType)
	assert.Equal(t, "corr-1", sent.CorrelationID)

	var data StepAdvancedData
	require.NoError(t, json.Unmarshal(sent.Data, &data))
	assert.Equal(t, domain.StepContactInfo, data.From)
	assert.Equal(t, domain.StepShippingAddress, data.To)
	assert.EqualValues(t, 2, data.Epoch)
}

func TestPublishContactSubmitted(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, newTestLogger())
	ctx := context.Background()

	var sent *pkgkafka.Event
	pub.On("Publish", ctx, TopicContactSubmitted, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	flow := &domain.CheckoutFlow{ID: "flow-1", CustomerID: "cust-1", BasketID: "basket-1"}
	require.NoError(t, p.PublishContactSubmitted(ctx, flow, domain.OutcomeGuestContinuation))

	var data ContactSubmittedData
	require.NoError(t, json.Unmarshal(sent.Data, &data))
	assert.Equal(t, "basket-1", data.BasketID)
	assert.Equal(t, domain.OutcomeGuestContinuation, data.Outcome)
	assert.Empty(t, sent.CorrelationID)
}

func TestPublishBasketMergeFailed_PublishError(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, newTestLogger())
	pub.On("Publish", mock.Anything, TopicBasketMergeFailed, mock.Anything).Return(errors.New("broker down"))

	err := p.PublishBasketMergeFailed(context.Background(), "cust-1", "timeout")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
