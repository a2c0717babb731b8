package ports

import (
	"context"

	"github.com/layer-3/garuda/core"
)

// EventPublisher notifies other services about terminal pipeline outcomes.
type EventPublisher interface {
	// PublishActivated publishes a session-activated event. Synthetic runs
	// are flagged so consumers can refuse to bill them.
	PublishActivated(ctx context.Context, subject string, synthetic bool, result core.ActivationResult) error

	// PublishFailed publishes a classified verification failure
	PublishFailed(ctx context.Context, subject string, kind core.ErrorKind) error
}
