package db

import (
	"context"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type executionRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutionRepository(db *gorm.DB, log *logger.Logger) ports.ExecutionRepository {
	return &executionRepository{db: db, log: log}
}

func (r *executionRepository) Create(ctx context.Context, exec *domain.Execution) error {
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		r.log.Errorw("execution_repo_create_failed", "task_id", exec.TaskID, "error", err)
		return err
	}
	r.log.Infow("execution_repo_create_ok", "id", exec.ID, "task_id", exec.TaskID)
	return nil
}

func (r *executionRepository) Update(ctx context.Context, exec *domain.Execution) error {
	if err := r.db.WithContext(ctx).Save(exec).Error; err != nil {
		r.log.Errorw("execution_repo_update_failed", "id", exec.ID, "error", err)
		return err
	}
	return nil
}

func (r *executionRepository) GetByID(ctx context.Context, id string) (*domain.Execution, error) {
	var exec domain.Execution
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&exec).Error; err != nil {
		r.log.Errorw("execution_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &exec, nil
}

func (r *executionRepository) GetByTaskID(ctx context.Context, taskID string, limit int) ([]domain.Execution, error) {
	var execs []domain.Execution
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("started_at desc").
		Limit(limit).
		Find(&execs).Error
	if err != nil {
		r.log.Errorw("execution_repo_list_failed", "task_id", taskID, "error", err)
		return nil, err
	}
	return execs, nil
}

func (r *executionRepository) ListUnfinished(ctx context.Context) ([]domain.Execution, error) {
	var execs []domain.Execution
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.ExecutionStatus{domain.ExecutionStatusPending, domain.ExecutionStatusRunning}).
		Find(&execs).Error
	if err != nil {
		r.log.Errorw("execution_repo_list_unfinished_failed", "error", err)
		return nil, err
	}
	return execs, nil
}
