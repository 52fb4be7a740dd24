package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/metrics"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/kube-rca/ingest/internal/queue"
)

const (
	maxFailureMessageLength = 4000
	unknownFailure          = "Unknown error"
)

type failedEventStore interface {
	InsertFailedLogEvent(ctx context.Context, f model.FailedLogEvent) error
}

// DeadLetterRecorder - 재전달 한도를 넘긴 메시지를 FailedLogEvent로 남긴다. 재처리하지 않는다.
type DeadLetterRecorder struct {
	store  failedEventStore
	logger *slog.Logger
	now    func() time.Time
}

func NewDeadLetterRecorder(store failedEventStore, logger *slog.Logger) *DeadLetterRecorder {
	return &DeadLetterRecorder{store: store, logger: logger.With("component", "deadletter"), now: time.Now}
}

// Record - queue.DeadLetterSink
func (r *DeadLetterRecorder) Record(ctx context.Context, dl queue.DeadLetter) error {
	f := newFailedLogEvent(dl, r.now().UTC())
	if err := r.store.InsertFailedLogEvent(ctx, f); err != nil {
		return err
	}
	metrics.DeadLettered()
	r.logger.Warn("log event dead-lettered",
		"message_id", dl.Message.ID,
		"correlation_id", dl.Message.CorrelationID,
		"delivery_attempt", f.DeliveryAttempt,
		"error", f.ErrorMessage,
	)
	return nil
}

func newFailedLogEvent(dl queue.DeadLetter, now time.Time) model.FailedLogEvent {
	errText := unknownFailure
	if dl.Err != nil && dl.Err.Error() != "" {
		errText = model.Truncate(dl.Err.Error(), maxFailureMessageLength)
	}

	f := model.FailedLogEvent{
		ID:              uuid.New(),
		OriginalPayload: string(dl.Message.Body),
		ErrorMessage:    errText,
		DeliveryAttempt: dl.Message.DeliveryCount,
		FailedAt:        now,
	}
	if raw, ok := dl.Message.Attributes[queue.AttrTenantID]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			f.TenantID = &id
		}
	}
	if dl.Reason != "" {
		reason := dl.Reason
		f.DeadLetterReason = &reason
	}
	if dl.Message.CorrelationID != "" {
		cid := dl.Message.CorrelationID
		f.CorrelationID = &cid
	}
	return f
}
