package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/arcline-io/arcline-accounts/internal/roles"
)

// CascadeJob runs role permission cascades handed off by the API server.
type CascadeJob struct {
	roles  *roles.Service
	logger *slog.Logger
}

// NewCascadeJob constructs a CascadeJob.
func NewCascadeJob(roleService *roles.Service, logger *slog.Logger) *CascadeJob {
	return &CascadeJob{roles: roleService, logger: logger}
}

// Handle processes TaskTypeRoleCascade tasks. The cascade is idempotent, so
// at-least-once delivery converges to the same cached state.
func (j *CascadeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RoleCascadePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	report := j.roles.Cascade(ctx, payload.RoleID)
	if !report.Complete() {
		j.logger.Warn("queued cascade incomplete",
			slog.String("enqueue_run_id", payload.RunID),
			slog.String("run_id", report.RunID),
			slog.Int64("role_id", payload.RoleID),
			slog.Int("failures", len(report.Failures)))
	}
	return nil
}
