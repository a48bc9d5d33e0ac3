package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/signalhub/internal/infrastructure/mqtt"
	"github.com/nerrad567/signalhub/internal/signal"
)

// RetainedPublisher publishes a retained message. *mqtt.Client satisfies it.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Republisher mirrors every signal onto MQTT as retained JSON at
// {prefix}/state/{id}, so late subscribers see the current state.
type Republisher struct {
	pub    RetainedPublisher
	topics mqtt.Topics
}

// NewRepublisher creates a republisher. An empty prefix uses
// mqtt.DefaultTopicPrefix.
func NewRepublisher(pub RetainedPublisher, prefix string) *Republisher {
	return &Republisher{pub: pub, topics: mqtt.Topics{Prefix: prefix}}
}

// Handle implements Handler.
func (r *Republisher) Handle(_ context.Context, sig signal.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", sig.ID, err)
	}
	return r.pub.PublishRetained(r.topics.State(sig.ID), payload)
}
