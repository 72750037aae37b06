package db

import (
	"github.com/lookout/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Task{},
		&domain.Execution{},
		&domain.MonitorEvent{},
		&domain.SystemSetting{},
	)
	if err != nil {
		return err
	}

	return createCustomIndexes(db)
}

func createCustomIndexes(db *gorm.DB) error {
	// Due-scan index: active tasks ordered by next firing.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_due
		ON tasks (next_run_at)
		WHERE is_active = true AND deleted_at IS NULL
	`).Error; err != nil {
		return err
	}

	// History reads walk a task's executions newest-first.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_executions_task_started
		ON executions (task_id, started_at DESC)
	`).Error; err != nil {
		return err
	}

	// Crash reconciliation scans for non-terminal executions.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_executions_unfinished
		ON executions (status)
		WHERE status IN ('pending', 'running')
	`).Error; err != nil {
		return err
	}

	return nil
}
