package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRoleCascade propagates a role mutation to descendant roles and
	// user snapshots.
	TaskTypeRoleCascade = "role:cascade"
	// TaskTypeIntegrityScan verifies cached permission snapshots against a
	// fresh resolution and repairs drift.
	TaskTypeIntegrityScan = "role:integrity_scan"
)

// RoleCascadePayload identifies the subtree to recompute.
type RoleCascadePayload struct {
	RoleID int64  `json:"role_id"`
	RunID  string `json:"run_id"`
}

// NewRoleCascadeTask constructs an Asynq task.
func NewRoleCascadeTask(payload RoleCascadePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRoleCascade, data), nil
}

// NewIntegrityScanTask constructs the scheduled cache verification task.
func NewIntegrityScanTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskTypeIntegrityScan, nil), nil
}
