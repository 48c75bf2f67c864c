package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/events"
)

// RecipientResolver maps a customer id to an email address.
type RecipientResolver interface {
	EmailFor(ctx context.Context, customerID uuid.UUID) (string, error)
}

// EmailNotifier queues transactional emails for selected topics.
type EmailNotifier struct {
	Queue        Enqueuer
	Recipients   RecipientResolver
	Enabled      bool
	TopicToggles map[string]bool
}

// QueueSender adapts the task queue to the synchronous sender interface
// used for one-off emails such as password resets.
type QueueSender struct {
	Queue Enqueuer
}

func (s QueueSender) Send(to, subject, html string) error {
	if s.Queue == nil {
		return nil
	}
	return s.Queue.Enqueue(context.Background(), EmailPayload{To: to, Subject: subject, Body: html})
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(ctx context.Context, event events.Event) error {
	if !n.Enabled || n.Queue == nil || n.Recipients == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	raw, ok := payload["customer_id"].(string)
	if !ok {
		return nil
	}
	customerID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	to, err := n.Recipients.EmailFor(ctx, customerID)
	if err != nil || to == "" {
		return nil
	}
	return n.Queue.Enqueue(ctx, EmailPayload{
		To:      to,
		Subject: subjectFor(event.Topic),
		Body:    bodyFor(event.Topic, payload, event.OccurredAt),
	})
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderCreated:
		return "Order received"
	case events.TopicOrderConfirmed:
		return "Order confirmed"
	case events.TopicOrderCompleted:
		return "Order delivered"
	case events.TopicOrderCancelled:
		return "Order cancelled"
	case events.TopicCashbackAwarded:
		return "Cashback added to your credits"
	case events.TopicRewardClaimed:
		return "Daily reward claimed"
	case events.TopicReferralApplied:
		return "Referral bonus applied"
	default:
		return fmt.Sprintf("Notification: %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Event %s at %s.", topic, occurred.Format(time.RFC3339))
	if orderID, ok := payload["order_id"].(string); ok && orderID != "" {
		summary += fmt.Sprintf("\nOrder: %s", orderID)
	}
	if amount, ok := payload["amount"].(float64); ok {
		summary += fmt.Sprintf("\nAmount: Rs %.2f", amount)
	}
	if total, ok := payload["total"].(float64); ok {
		summary += fmt.Sprintf("\nTotal: Rs %.2f", total)
	}
	return summary
}
