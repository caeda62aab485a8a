package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/docsign-api/internal/models"
	"github.com/noah-isme/docsign-api/pkg/jobs"
)

// Sender delivers one notification to its recipient. Implementations wrap a
// mail gateway, a push provider, or just a log in development.
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
}

// LogSender writes notifications to the application log instead of delivering
// them. The development default.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the notification.
func (s LogSender) Send(_ context.Context, n models.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification",
		zap.String("event", string(n.Event)),
		zap.String("recipient_id", n.RecipientID),
		zap.String("document_id", n.DocumentID))
	return nil
}

// NotificationService dispatches workflow notifications asynchronously.
// Delivery failures are retried by the queue and logged; they never surface
// into the signing workflow.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService wires a sender behind a background queue.
func NewNotificationService(sender Sender, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		n, ok := job.Payload.(models.Notification)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return sender.Send(ctx, n)
	}
	return &NotificationService{
		queue:  jobs.NewQueue("notifications", handler, cfg),
		logger: logger,
	}
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification. Errors are logged, not returned; the
// workflow that triggered the event has already committed.
func (s *NotificationService) Notify(_ context.Context, n models.Notification) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(n.Event),
		Payload: n,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("event", string(n.Event)),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
	}
}
