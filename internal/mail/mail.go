package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/tagboard/tagboard/jobs"
)

// Message is an outgoing e-mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sink delivers messages.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Enqueuer submits mail tasks. *jobs.Client satisfies it.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// QueueSink hands messages to the background worker.
type QueueSink struct {
	queue Enqueuer
}

// NewQueueSink constructs a QueueSink.
func NewQueueSink(queue Enqueuer) *QueueSink {
	return &QueueSink{queue: queue}
}

// Send enqueues msg.
func (s *QueueSink) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail: empty recipient")
	}
	_, err := s.queue.EnqueueSendEmail(ctx, jobs.SendEmailPayload{To: msg.To, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("mail: enqueue: %w", err)
	}
	return nil
}

// Templates carries the site details rendered into outgoing mail.
type Templates struct {
	SiteName string
	BaseURL  string
}

// ConfirmationMessage builds the mail asking userName to confirm email by
// following a link carrying token.
func (t Templates) ConfirmationMessage(userName, email, token string) Message {
	site := t.SiteName
	if site == "" {
		site = "tagboard"
	}
	link := strings.TrimRight(t.BaseURL, "/") + "/activate/" + url.PathEscape(token)
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", userName)
	fmt.Fprintf(&body, "someone registered the address %s at %s.\n", email, site)
	fmt.Fprintf(&body, "To confirm it, open the following link:\n\n%s\n\n", link)
	body.WriteString("If this was not you, ignore this message.\n")
	return Message{
		To:      email,
		Subject: fmt.Sprintf("[%s] Activate your e-mail address", site),
		Body:    body.String(),
	}
}

var _ Sink = (*QueueSink)(nil)
