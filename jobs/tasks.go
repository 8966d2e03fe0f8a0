package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Queues served by the worker.
const (
	QueueMail        = "mail"
	QueueMaintenance = "maintenance"
)

const (
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSweepTags removes tags no post references any more.
	TaskTypeSweepTags = "tags:sweep"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask builds a mail task. An empty recipient is rejected here
// rather than retried by the worker.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, errors.New("jobs: mail task without recipient")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueMail), asynq.MaxRetry(5)), nil
}

// Deliverer hands a message to the mail transport.
type Deliverer interface {
	Deliver(ctx context.Context, payload SendEmailPayload) error
}

// NewSendEmailHandler processes TaskTypeSendEmail tasks. Undecodable payloads
// are not retried.
func NewSendEmailHandler(deliverer Deliverer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode mail payload: %v: %w", err, asynq.SkipRetry)
		}
		if err := deliverer.Deliver(ctx, payload); err != nil {
			logger.Warn("mail delivery failed", slog.String("to", payload.To), slog.Any("error", err))
			return err
		}
		logger.Info("mail delivered", slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return nil
	}
}

// TagSweeper removes orphaned tags.
type TagSweeper interface {
	RemoveUnusedTags(ctx context.Context) (int64, error)
}

// NewSweepTagsTask constructs the periodic tag sweep task.
func NewSweepTagsTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweepTags, nil, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3))
}

// NewSweepTagsHandler processes TaskTypeSweepTags tasks.
func NewSweepTagsHandler(sweeper TagSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := sweeper.RemoveUnusedTags(ctx)
		if err != nil {
			return err
		}
		logger.Info("swept unused tags", slog.Int64("removed", removed))
		return nil
	}
}
