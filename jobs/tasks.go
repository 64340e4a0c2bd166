package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity re-verifies stored journal balances.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskIdempotencyCleanup purges expired intake idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// GLIntegrityPayload scopes an integrity run. A zero BusinessID scans every
// business that has entries.
type GLIntegrityPayload struct {
	BusinessID int64 `json:"business_id,omitempty"`
}

// NewGLIntegrityTask constructs an Asynq task.
func NewGLIntegrityTask(businessID int64) (*asynq.Task, error) {
	data, err := json.Marshal(GLIntegrityPayload{BusinessID: businessID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data), nil
}

// IdempotencyCleanupPayload sets how long processed keys are retained.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NewTask builds a supported task by name with its default payload.
func NewTask(name string) (*asynq.Task, error) {
	switch name {
	case TaskGLIntegrity:
		return NewGLIntegrityTask(0)
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(DefaultIdempotencyRetentionHours)
	}
	return nil, ErrUnknownTask
}
