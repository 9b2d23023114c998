package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/logger"
)

const (
	EventTypePurchase = "purchase"
	EventTypeRefund   = "refund"
)

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// LineItem is the event-facing projection of an order line.
type LineItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price_cents"`
}

// Event is the payload published on the notification/analytics channel.
type Event struct {
	Type        string     `json:"type"`
	OrderID     string     `json:"order_id"`
	AmountCents int        `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Items       []LineItem `json:"items,omitempty"`
	RefundID    string     `json:"refund_id,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// OrderEvents publishes purchase and refund events fire-and-forget. Publish
// failures are logged and never affect order correctness.
type OrderEvents struct {
	pub    topicPublisher
	logger *logger.Logger
}

// NewOrderEvents wires the event publisher. A nil publisher disables the
// channel, turning publishes into no-ops.
func NewOrderEvents(pub topicPublisher, logg *logger.Logger) (*OrderEvents, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &OrderEvents{pub: pub, logger: logg}, nil
}

// PublishPurchase announces a committed order.
func (e *OrderEvents) PublishPurchase(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	items := make([]LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItem{
			ProductID: item.ProductID.String(),
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPriceCents,
		})
	}
	e.publish(ctx, Event{
		Type:        EventTypePurchase,
		OrderID:     order.ID.String(),
		AmountCents: order.TotalCents,
		Currency:    order.Currency.String(),
		Items:       items,
		OccurredAt:  time.Now().UTC(),
	})
}

// PublishRefund announces a confirmed refund.
func (e *OrderEvents) PublishRefund(ctx context.Context, order *models.Order, amountCents int, refundID string) {
	if order == nil {
		return
	}
	e.publish(ctx, Event{
		Type:        EventTypeRefund,
		OrderID:     order.ID.String(),
		AmountCents: amountCents,
		Currency:    order.Currency.String(),
		RefundID:    refundID,
		OccurredAt:  time.Now().UTC(),
	})
}

func (e *OrderEvents) publish(ctx context.Context, event Event) {
	if e == nil || e.pub == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logCtx := e.logger.WithField(ctx, "event_type", event.Type)
		e.logger.Error(logCtx, "marshaling order event", err)
		return
	}

	result := e.pub.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":     event.Type,
			"order_id": event.OrderID,
		},
	})

	go func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := result.Get(waitCtx); err != nil {
			logCtx := e.logger.WithFields(waitCtx, map[string]any{
				"event_type": event.Type,
				"order_id":   event.OrderID,
			})
			e.logger.Error(logCtx, "publishing order event", err)
		}
	}()
}
