// Package journalrepo stores workflow runs and their events in PostgreSQL.
package journalrepo

import (
	"time"

	"freight/internal/workflow"
)

// RunDTO is a row of workflow_runs. At most one run per workflow id may be
// OPEN, enforced by a partial unique index created in Migrate.
type RunDTO struct {
	ID         string    `gorm:"primaryKey;size:36"`
	WorkflowID string    `gorm:"size:64;not null;index"`
	Input      []byte    `gorm:"type:bytea;not null"`
	Status     string    `gorm:"size:20;not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
	ClosedAt   *time.Time
}

func (RunDTO) TableName() string {
	return "workflow_runs"
}

// EventDTO is a row of workflow_events.
type EventDTO struct {
	RunID        string `gorm:"primaryKey;size:36"`
	Seq          int64  `gorm:"primaryKey;autoIncrement:false"`
	Kind         string `gorm:"size:16;not null"`
	Name         string `gorm:"size:64;not null"`
	Payload      []byte `gorm:"type:bytea"`
	Error        string `gorm:"type:text"`
	NonRetryable bool   `gorm:"not null;default:false"`
	RecordedAt   time.Time
}

func (EventDTO) TableName() string {
	return "workflow_events"
}

func runFromDomain(run workflow.Run) RunDTO {
	return RunDTO{
		ID:         run.ID,
		WorkflowID: run.WorkflowID,
		Input:      run.Input,
		Status:     string(workflow.RunOpen),
		CreatedAt:  run.CreatedAt,
	}
}

func runToDomain(dto RunDTO) workflow.Run {
	return workflow.Run{
		ID:         dto.ID,
		WorkflowID: dto.WorkflowID,
		Input:      dto.Input,
		Status:     workflow.RunStatus(dto.Status),
		CreatedAt:  dto.CreatedAt,
		ClosedAt:   dto.ClosedAt,
	}
}

func eventFromDomain(e workflow.Event) EventDTO {
	return EventDTO{
		RunID:        e.RunID,
		Seq:          e.Seq,
		Kind:         string(e.Kind),
		Name:         e.Name,
		Payload:      e.Payload,
		Error:        e.Error,
		NonRetryable: e.NonRetryable,
		RecordedAt:   e.RecordedAt,
	}
}

func eventToDomain(dto EventDTO) workflow.Event {
	return workflow.Event{
		RunID:        dto.RunID,
		Seq:          dto.Seq,
		Kind:         workflow.EventKind(dto.Kind),
		Name:         dto.Name,
		Payload:      dto.Payload,
		Error:        dto.Error,
		NonRetryable: dto.NonRetryable,
		RecordedAt:   dto.RecordedAt,
	}
}
