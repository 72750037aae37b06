package notify

import (
	"context"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

// LogDispatcher writes notifications to the application log. Used when no
// webhook is configured, so a decided notification is never dropped
// silently.
type LogDispatcher struct {
	log *logger.Logger
}

func NewLogDispatcher(log *logger.Logger) ports.NotificationDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Deliver(_ context.Context, event domain.NotificationEvent) error {
	d.log.Infow("notification",
		"task_id", event.TaskID,
		"execution_id", event.ExecutionID,
		"task_name", event.TaskName,
		"message", event.Message,
	)
	return nil
}
