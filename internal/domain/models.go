package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ==================== ENUMS ====================

type NotifyBehavior string

const (
	NotifyOnce       NotifyBehavior = "once"
	NotifyAlways     NotifyBehavior = "always"
	NotifyTrackState NotifyBehavior = "track_state"
)

func (b NotifyBehavior) Valid() bool {
	switch b {
	case NotifyOnce, NotifyAlways, NotifyTrackState:
		return true
	default:
		return false
	}
}

type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// Terminal reports whether the status is final for an execution.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}

// TaskStatus is the derived display status. It is computed on read and
// never stored, so a task can never be "triggered" and "paused" at once.
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusPaused    TaskStatus = "paused"
)

type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
)

// ==================== JSONB TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(bytes, j)
}

// GroundingSource is one cited URL/title pair backing an executor answer.
type GroundingSource struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// GroundingSources is stored as a jsonb array; order is preserved.
type GroundingSources []GroundingSource

func (s GroundingSources) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *GroundingSources) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan grounding sources: invalid type")
	}
	return json.Unmarshal(bytes, s)
}

// ==================== ENTITIES ====================

// Task is a monitoring intent: a search query, a trigger condition and a
// cron schedule with an explicit timezone. The rolling fields
// (ConditionMet, LastKnownState, LastExecutionID) are replaced, never
// accumulated, on every terminal successful execution and are mutated only
// by the execution coordinator.
type Task struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name                 string         `gorm:"size:255;not null" json:"name"`
	SearchQuery          string         `gorm:"type:text;not null" json:"search_query"`
	ConditionDescription string         `gorm:"type:text;not null" json:"condition_description"`
	Schedule             string         `gorm:"size:120;not null" json:"schedule"`
	Timezone             string         `gorm:"size:64;not null;default:'UTC'" json:"timezone"`
	NotifyBehavior       NotifyBehavior `gorm:"size:20;not null;default:'once'" json:"notify_behavior"`
	IsActive             bool           `gorm:"default:true" json:"is_active"`

	// Rolling state from the most recent successful execution.
	ConditionMet    bool    `gorm:"default:false" json:"condition_met"`
	LastKnownState  JSONB   `gorm:"type:jsonb" json:"last_known_state"`
	LastExecutionID *string `gorm:"type:uuid" json:"last_execution_id,omitempty"`

	// Next scheduled firing; nil when the schedule has no future occurrence.
	NextRunAt *time.Time `gorm:"index" json:"next_run_at,omitempty"`

	// Channel hints passed through to the notification dispatcher.
	Channels JSONB `gorm:"type:jsonb" json:"channels,omitempty"`

	// Relationships
	Executions []Execution `gorm:"foreignKey:TaskID" json:"executions,omitempty"`
}

// DisplayStatus derives the single authoritative user-facing status from
// is_active and the rolling condition verdict.
func (t *Task) DisplayStatus() TaskStatus {
	if t.IsActive {
		return TaskStatusActive
	}
	if t.ConditionMet {
		return TaskStatusCompleted
	}
	return TaskStatusPaused
}

// Execution is one firing's outcome. Rows are append-only and immutable
// once terminal.
type Execution struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TaskID string `gorm:"type:uuid;not null;index" json:"task_id"`
	Task   *Task  `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Status     ExecutionStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	StartedAt  time.Time       `gorm:"index;not null" json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Manual     bool            `gorm:"default:false" json:"manual"`
	Attempts   int             `gorm:"default:0" json:"attempts"`

	Answer        string           `gorm:"type:text" json:"answer,omitempty"`
	StateSnapshot JSONB            `gorm:"type:jsonb" json:"state_snapshot,omitempty"`
	ConditionMet  bool             `gorm:"default:false" json:"condition_met"`
	ChangeSummary *string          `gorm:"type:text" json:"change_summary,omitempty"`
	ChangeDetail  JSONB            `gorm:"type:jsonb" json:"change_detail,omitempty"`
	Sources       GroundingSources `gorm:"type:jsonb" json:"grounding_sources,omitempty"`
	Error         string           `gorm:"type:text" json:"error,omitempty"`
}

// MonitorEvent is the audit timeline: lifecycle transitions and the
// pointer left behind for every dispatched notification.
type MonitorEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Type        string      `gorm:"size:100;not null;index" json:"type"`
	Status      EventStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Message     string      `gorm:"type:text" json:"message"`
	Meta        JSONB       `gorm:"type:jsonb" json:"meta"`
	TaskID      *string     `gorm:"type:uuid;index" json:"task_id,omitempty"`
	ExecutionID *string     `gorm:"type:uuid" json:"execution_id,omitempty"`
}

type SystemSetting struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Key       string `gorm:"size:255;uniqueIndex;not null" json:"key"`
	Value     string `gorm:"type:text" json:"value"`
	Encrypted bool   `gorm:"default:false" json:"encrypted"`
	Category  string `gorm:"size:100;index" json:"category"`
}

// ==================== EPHEMERAL TYPES ====================

// NotificationEvent is handed to the dispatcher; it is not persisted
// beyond the monitor_events audit pointer.
type NotificationEvent struct {
	TaskID      string `json:"task_id"`
	ExecutionID string `json:"execution_id"`
	TaskName    string `json:"task_name"`
	Message     string `json:"message"`
	Channels    JSONB  `json:"channels,omitempty"`
}

// FieldChange describes one changed key between two state snapshots.
type FieldChange struct {
	Field  string      `json:"field"`
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// ChangeSummary is the comparator's output for a meaningful difference.
// A nil *ChangeSummary means "no change" (or no prior snapshot).
type ChangeSummary struct {
	Fields []FieldChange `json:"fields"`
}
