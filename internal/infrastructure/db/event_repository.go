package db

import (
	"context"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type eventRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepository(db *gorm.DB, log *logger.Logger) ports.EventRepository {
	return &eventRepository{db: db, log: log}
}

func (r *eventRepository) Create(ctx context.Context, event *domain.MonitorEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		r.log.Errorw("event_repo_create_failed", "type", event.Type, "error", err)
		return err
	}
	return nil
}

func (r *eventRepository) GetAll(ctx context.Context, limit int) ([]domain.MonitorEvent, error) {
	var events []domain.MonitorEvent
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		r.log.Errorw("event_repo_list_failed", "error", err)
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) GetByTask(ctx context.Context, taskID string, limit int) ([]domain.MonitorEvent, error) {
	var events []domain.MonitorEvent
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		r.log.Errorw("event_repo_get_by_task_failed", "task_id", taskID, "error", err)
		return nil, err
	}
	return events, nil
}
