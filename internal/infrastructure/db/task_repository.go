package db

import (
	"context"
	"time"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "id", task.ID, "error", err)
		return err
	}
	r.log.Infow("task_repo_create_ok", "id", task.ID)
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		r.log.Errorw("task_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) GetAll(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_list_failed", "error", err)
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		r.log.Errorw("task_repo_update_failed", "id", task.ID, "error", err)
		return err
	}
	r.log.Infow("task_repo_update_ok", "id", task.ID)
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Owned executions go with the task.
		if err := tx.Where("task_id = ?", id).Delete(&domain.Execution{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Task{}).Error
	})
	if err != nil {
		r.log.Errorw("task_repo_delete_failed", "id", id, "error", err)
		return err
	}
	r.log.Infow("task_repo_delete_ok", "id", id)
	return nil
}

func (r *taskRepository) ListDue(ctx context.Context, now time.Time) ([]domain.Task, error) {
	var tasks []domain.Task
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at asc").
		Find(&tasks).Error
	if err != nil {
		r.log.Errorw("task_repo_list_due_failed", "error", err)
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) SetActive(ctx context.Context, id string, active bool, nextRunAt *time.Time) error {
	// nil clears next_run_at; a paused task must drop out of the due scan.
	updates := map[string]interface{}{"is_active": active, "next_run_at": nextRunAt}
	err := r.db.WithContext(ctx).Model(&domain.Task{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		r.log.Errorw("task_repo_set_active_failed", "id", id, "active", active, "error", err)
		return err
	}
	r.log.Infow("task_repo_set_active_ok", "id", id, "active", active)
	return nil
}

// RecordResult writes the terminal execution row and the task-side rollup
// in one transaction so a terminal execution can never coexist with stale
// task fields.
func (r *taskRepository) RecordResult(ctx context.Context, exec *domain.Execution, rollup ports.TaskRollup) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(exec).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if rollup.UpdateRolling {
			updates["condition_met"] = rollup.ConditionMet
			updates["last_known_state"] = rollup.Snapshot
			updates["last_execution_id"] = exec.ID
		}
		if rollup.NextRunAt != nil {
			updates["next_run_at"] = *rollup.NextRunAt
		}
		if rollup.Deactivate {
			updates["is_active"] = false
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&domain.Task{}).Where("id = ?", exec.TaskID).Updates(updates).Error
	})
	if err != nil {
		r.log.Errorw("task_repo_record_result_failed", "task_id", exec.TaskID, "execution_id", exec.ID, "error", err)
		return err
	}
	r.log.Infow("task_repo_record_result_ok", "task_id", exec.TaskID, "execution_id", exec.ID, "status", exec.Status)
	return nil
}
