package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/pcassist/internal/broadcast"
)

// Publisher is an overlay sink that publishes each message, retained, on
// the overlay topic so a renderer that connects late still sees the current
// state.
type Publisher struct {
	transport Transport
	topic     string
}

// NewPublisher creates a publisher on prefix/overlay.
func NewPublisher(t Transport, prefix string) *Publisher {
	return &Publisher{transport: t, topic: Topic(prefix, OverlayTopic)}
}

// Name implements overlay.Sink.
func (p *Publisher) Name() string {
	return "mqtt"
}

// Show implements overlay.Sink.
func (p *Publisher) Show(msg broadcast.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal overlay message: %w", err)
	}
	return p.transport.Publish(p.topic, b, true)
}
