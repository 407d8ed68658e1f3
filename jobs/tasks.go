package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/reelhouse/reelhouse/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotify dispatches a domain event to the external notifier.
	TaskTypeNotify = "notify:event"
	// TaskTypeArchiveSweep hides and purges long-closed projects.
	TaskTypeArchiveSweep = "projects:archive_sweep"
)

// NewNotifyTask constructs an Asynq task carrying one domain event.
func NewNotifyTask(evt shared.Event) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}

// NotifyHandler processes TaskTypeNotify tasks. Delivery here is a log
// line; the actual channel (mail, chat webhook) hangs off this handler.
type NotifyHandler struct {
	logger *slog.Logger
}

// NewNotifyHandler builds NotifyHandler instance.
func NewNotifyHandler(logger *slog.Logger) *NotifyHandler {
	return &NotifyHandler{logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *NotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var evt shared.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	h.logger.Info("event dispatched",
		slog.String("event", evt.Name),
		slog.String("entity", evt.Entity),
		slog.String("entity_id", evt.EntityID))
	return nil
}

// NewArchiveSweepTask constructs the periodic archive sweep task.
func NewArchiveSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeArchiveSweep, nil)
}
