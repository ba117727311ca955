package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const subjectConversationCreated = "chat.conversation.created"

// NatsPublisher announces newly created conversations.
type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsPublisher{nc: nc}, nil
}

func (p *NatsPublisher) ConversationCreated(ev ConversationCreated) error {
	if p == nil || p.nc == nil {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal conversation.created: %w", err)
	}
	if err := p.nc.Publish(subjectConversationCreated, b); err != nil {
		return fmt.Errorf("publish conversation.created: %w", err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}
