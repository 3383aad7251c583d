package jobs

import (
	"context"
	"errors"
	"log/slog"
	"reflect"

	"github.com/hibiken/asynq"

	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// IntegrityScanJob compares every active role's cached effective set with a
// fresh resolution and re-runs the cascade where they differ. A safety net
// for caches left stale by crashed cascades or out-of-band writes.
type IntegrityScanJob struct {
	roles  *roles.Service
	logger *slog.Logger
}

// NewIntegrityScanJob constructs an IntegrityScanJob.
func NewIntegrityScanJob(roleService *roles.Service, logger *slog.Logger) *IntegrityScanJob {
	return &IntegrityScanJob{roles: roleService, logger: logger}
}

// Handle processes TaskTypeIntegrityScan tasks.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	list, err := j.roles.ListRoles(ctx, nil)
	if err != nil {
		return err
	}
	repaired := 0
	for _, role := range list {
		res, err := j.roles.ResolveEffective(ctx, role.ID)
		if err != nil {
			if errors.Is(err, shared.ErrCycleDetected) {
				j.logger.Error("integrity scan found role cycle",
					slog.Int64("role_id", role.ID), slog.Any("error", err))
				continue
			}
			return err
		}
		if permissionsEqual(role.Effective, res.Permissions) {
			continue
		}
		report := j.roles.Cascade(ctx, role.ID)
		repaired++
		if !report.Complete() {
			j.logger.Warn("integrity repair incomplete",
				slog.Int64("role_id", role.ID),
				slog.Int("failures", len(report.Failures)))
		}
	}
	if repaired > 0 {
		j.logger.Info("integrity scan repaired stale caches", slog.Int("roles", repaired))
	}
	return nil
}

func permissionsEqual(a, b roles.PermissionSet) bool {
	am := make(map[string]bool, len(a))
	for _, p := range a {
		am[p.Name] = p.Allowed
	}
	bm := make(map[string]bool, len(b))
	for _, p := range b {
		bm[p.Name] = p.Allowed
	}
	return reflect.DeepEqual(am, bm)
}
