package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

const (
	// TopicActivated carries session activation events
	TopicActivated = "compliance.session_activated"

	// TopicFailed carries classified verification failures
	TopicFailed = "compliance.verification_failed"
)

// ActivatedEvent notifies downstream services that a session was activated.
// Synthetic runs are flagged so billing and compliance records skip them.
type ActivatedEvent struct {
	Subject       string    `json:"subject"`
	Synthetic     bool      `json:"synthetic"`
	AlreadyActive bool      `json:"already_active"`
	TxRef         string    `json:"tx_ref,omitempty"`
	GasCost       string    `json:"gas_cost,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// FailedEvent notifies downstream services of a classified failure.
type FailedEvent struct {
	Subject    string         `json:"subject"`
	Kind       core.ErrorKind `json:"kind"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishActivated publishes a session-activated event.
func (p *WatermillPublisher) PublishActivated(ctx context.Context, subject string, synthetic bool, result core.ActivationResult) error {
	event := ActivatedEvent{
		Subject:       subject,
		Synthetic:     synthetic,
		AlreadyActive: result.AlreadyActive,
		TxRef:         result.TxRef,
		OccurredAt:    time.Now().UTC(),
	}
	if !result.GasCost.IsZero() {
		event.GasCost = result.GasCost.String()
	}
	return p.publish(TopicActivated, event)
}

// PublishFailed publishes a classified verification failure.
func (p *WatermillPublisher) PublishFailed(ctx context.Context, subject string, kind core.ErrorKind) error {
	return p.publish(TopicFailed, FailedEvent{
		Subject:    subject,
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
