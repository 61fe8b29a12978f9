package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// SDKPublisher writes SDK events onto the topic the inbound worker consumes.
// The HTTP webhook uses it so that webhook and native SDK events share one ordered path.
type SDKPublisher struct {
	writer *kafka.Writer
}

// NewSDKPublisher constructs a publisher for the SDK topic.
func NewSDKPublisher(k *Kafka, topic string) *SDKPublisher {
	return &SDKPublisher{writer: k.NewWriter(topic)}
}

// PublishSDKEvent writes msg keyed by handle, or by call id when no handle is given.
func (p *SDKPublisher) PublishSDKEvent(ctx context.Context, msg SDKEventMessage) error {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sdk publisher: marshal message: %w", err)
	}

	key := []byte(msg.Handle)
	if len(key) == 0 && msg.CallID != nil {
		key = msg.CallID[:]
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value, Time: msg.OccurredAt}); err != nil {
		return fmt.Errorf("sdk publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *SDKPublisher) Close() error {
	return p.writer.Close()
}
