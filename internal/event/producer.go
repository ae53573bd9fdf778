package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront-checkout/internal/domain"
	pkgkafka "github.com/utafrali/storefront-checkout/pkg/kafka"
	"github.com/utafrali/storefront-checkout/pkg/logger"
)

// Kafka topics for checkout flow events.
var (
	TopicContactSubmitted  = pkgkafka.Topic("checkout", "contact_submitted")
	TopicStepAdvanced      = pkgkafka.Topic("checkout", "step_advanced")
	TopicBasketMergeFailed = pkgkafka.Topic("checkout", "basket_merge_failed")
)

const (
	AggregateTypeFlow     = "checkout_flow"
	AggregateTypeCustomer = "customer"
	SourceCheckoutService = "storefront-checkout"
)

// ContactSubmittedData is the payload of a contact_submitted event.
type ContactSubmittedData struct {
	FlowID     string             `json:"flow_id"`
	CustomerID string             `json:"customer_id"`
	BasketID   string             `json:"basket_id"`
	Outcome    domain.OutcomeKind `json:"outcome"`
}

// StepAdvancedData is the payload of a step_advanced event.
type StepAdvancedData struct {
	FlowID     string      `json:"flow_id"`
	CustomerID string      `json:"customer_id"`
	From       domain.Step `json:"from"`
	To         domain.Step `json:"to"`
	Epoch      int64       `json:"epoch"`
}

// BasketMergeFailedData is the payload of a basket_merge_failed event.
type BasketMergeFailedData struct {
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason"`
}

// Publisher writes events to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes checkout domain events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the checkout service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishContactSubmitted publishes the outcome of a contact-info step.
func (p *Producer) PublishContactSubmitted(ctx context.Context, flow *domain.CheckoutFlow, outcome domain.OutcomeKind) error {
	return p.publish(ctx, TopicContactSubmitted, flow.ID, AggregateTypeFlow, ContactSubmittedData{
		FlowID:     flow.ID,
		CustomerID: flow.CustomerID,
		BasketID:   flow.BasketID,
		Outcome:    outcome,
	})
}

// PublishStepAdvanced publishes a step transition.
func (p *Producer) PublishStepAdvanced(ctx context.Context, flow *domain.CheckoutFlow, from domain.Step) error {
	return p.publish(ctx, TopicStepAdvanced, flow.ID, AggregateTypeFlow, StepAdvancedData{
		FlowID:     flow.ID,
		CustomerID: flow.CustomerID,
		From:       from,
		To:         flow.Step,
		Epoch:      flow.Epoch,
	})
}

// PublishBasketMergeFailed reports a basket merge that did not complete.
func (p *Producer) PublishBasketMergeFailed(ctx context.Context, customerID, reason string) error {
	return p.publish(ctx, TopicBasketMergeFailed, customerID, AggregateTypeCustomer, BasketMergeFailedData{
		CustomerID: customerID,
		Reason:     reason,
	})
}
