package telephony

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/hotline/internal/domain"
)

// Sink receives network events from the calling SDK. The call registry implements it.
type Sink interface {
	Progress(ctx context.Context, id uuid.UUID) (domain.Call, error)
	Establish(ctx context.Context, id uuid.UUID) (domain.Call, error)
	End(ctx context.Context, id uuid.UUID) (domain.Call, error)
}

// Dialer abstracts the outbound side of the calling SDK.
// Dial returns once the attempt is under way; progress is reported to the Sink later.
type Dialer interface {
	Dial(ctx context.Context, call domain.Call) error
	Hangup(ctx context.Context, callID uuid.UUID) error
}

// NopDialer is used when the SDK lives out of process and reports through Kafka only.
type NopDialer struct{}

// Dial does nothing.
func (NopDialer) Dial(context.Context, domain.Call) error { return nil }

// Hangup does nothing.
func (NopDialer) Hangup(context.Context, uuid.UUID) error { return nil }
