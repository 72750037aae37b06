package dto

import (
	"time"

	"github.com/lookout/backend/internal/domain"
)

type ExecutionResponse struct {
	ID            string                  `json:"id"`
	TaskID        string                  `json:"task_id"`
	Status        domain.ExecutionStatus  `json:"status"`
	StartedAt     time.Time               `json:"started_at"`
	FinishedAt    *time.Time              `json:"finished_at,omitempty"`
	Manual        bool                    `json:"manual"`
	Attempts      int                     `json:"attempts"`
	Answer        string                  `json:"answer,omitempty"`
	StateSnapshot domain.JSONB            `json:"state_snapshot,omitempty"`
	ConditionMet  bool                    `json:"condition_met"`
	ChangeSummary *string                 `json:"change_summary,omitempty"`
	Sources       domain.GroundingSources `json:"grounding_sources,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

func ExecutionToResponse(exec *domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:            exec.ID,
		TaskID:        exec.TaskID,
		Status:        exec.Status,
		StartedAt:     exec.StartedAt,
		FinishedAt:    exec.FinishedAt,
		Manual:        exec.Manual,
		Attempts:      exec.Attempts,
		Answer:        exec.Answer,
		StateSnapshot: exec.StateSnapshot,
		ConditionMet:  exec.ConditionMet,
		ChangeSummary: exec.ChangeSummary,
		Sources:       exec.Sources,
		Error:         exec.Error,
	}
}

func ExecutionsToResponse(execs []domain.Execution) []ExecutionResponse {
	responses := make([]ExecutionResponse, len(execs))
	for i := range execs {
		responses[i] = ExecutionToResponse(&execs[i])
	}
	return responses
}
