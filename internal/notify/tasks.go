package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bibek-sh/backend-pasal/internal/common"
)

// TypeEmailDelivery is the asynq task type for outbound transactional email.
const TypeEmailDelivery = "email:deliver"

// EmailPayload is the task body for a single email.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Enqueuer submits email tasks to the asynq queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, p EmailPayload) error
}

// AsynqEnqueuer wraps an asynq client as an Enqueuer.
type AsynqEnqueuer struct {
	Client    *asynq.Client
	MaxRetry  int
	Retention time.Duration
	ProcessIn time.Duration
	QueueName string
}

// Enqueue schedules an email delivery task.
func (e AsynqEnqueuer) Enqueue(ctx context.Context, p EmailPayload) error {
	if e.Client == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: encode email task: %w", err)
	}
	opts := []asynq.Option{}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	if e.ProcessIn > 0 {
		opts = append(opts, asynq.ProcessIn(e.ProcessIn))
	}
	if e.QueueName != "" {
		opts = append(opts, asynq.Queue(e.QueueName))
	}
	_, err = e.Client.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, data), opts...)
	return err
}

// NewEmailTaskHandler returns the asynq handler that delivers queued emails
// through the given sender.
func NewEmailTaskHandler(sender common.EmailSender) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p EmailPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("notify: decode email task: %v: %w", err, asynq.SkipRetry)
		}
		if p.To == "" {
			return nil
		}
		return sender.Send(p.To, p.Subject, p.Body)
	}
}
