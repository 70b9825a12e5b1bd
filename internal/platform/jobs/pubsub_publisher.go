package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/acai-counter/pos/internal/services"
)

// PubSubSalePublisher publishes ledger changes to a Pub/Sub topic.
type PubSubSalePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubSalePublisher constructs a Pub/Sub backed sale event publisher.
func NewPubSubSalePublisher(topic *pubsub.Topic) (*PubSubSalePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub sale publisher: topic is required")
	}
	return &PubSubSalePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishSaleEvent sends event and waits for the server acknowledgement.
func (p *PubSubSalePublisher) PublishSaleEvent(ctx context.Context, event services.SaleEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub sale publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sale event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "saleId", event.Sale.ID)
	setAttr(attrs, "orderId", event.Sale.OrderID)
	setAttr(attrs, "paymentMethod", string(event.Sale.PaymentMethod))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish sale event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
