package roles

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// cascadeConcurrency bounds how many subtree branches are walked in parallel.
// Updates to a single role or user stay ordered because each entity is
// visited exactly once.
const cascadeConcurrency = 4

// CascadeFailure records one entity the cascade could not bring up to date.
type CascadeFailure struct {
	RoleID int64  `json:"role_id"`
	UserID int64  `json:"user_id,omitempty"`
	Err    string `json:"error"`
}

// CascadeReport summarizes one cascade run. Partial failures are collected
// here instead of aborting, since abandoning a half-finished cascade leaves a
// worse inconsistency than completing the rest.
type CascadeReport struct {
	RunID        string           `json:"run_id"`
	RootRoleID   int64            `json:"root_role_id"`
	RolesVisited int              `json:"roles_visited"`
	UsersUpdated int              `json:"users_updated"`
	Failures     []CascadeFailure `json:"failures,omitempty"`
	Duration     time.Duration    `json:"-"`
}

// Complete reports whether every visited entity was refreshed.
func (r *CascadeReport) Complete() bool {
	return r != nil && len(r.Failures) == 0
}

// Cascade recomputes the effective permission cache for every role in the
// subtree rooted at rootID and overwrites the snapshot of every user assigned
// to any visited role. Each role is visited at most once even if the store
// holds duplicate or cyclic child links. The run is idempotent: repeating it
// with the same inputs converges to the same cached state.
func (s *Service) Cascade(ctx context.Context, rootID int64) *CascadeReport {
	start := time.Now()
	report := &CascadeReport{RunID: newRunID(), RootRoleID: rootID}
	var mu sync.Mutex
	visited := make(map[int64]struct{})

	var walk func(ctx context.Context, id int64)
	walk = func(ctx context.Context, id int64) {
		mu.Lock()
		if _, seen := visited[id]; seen {
			mu.Unlock()
			return
		}
		visited[id] = struct{}{}
		report.RolesVisited++
		mu.Unlock()

		res, err := s.resolver.Resolve(ctx, id)
		if err != nil {
			// An unresolvable role cannot produce a trustworthy set for
			// itself or its descendants; record once and stop this branch.
			s.recordFailure(report, &mu, CascadeFailure{RoleID: id, Err: err.Error()})
			return
		}

		if err := s.repo.SetEffective(ctx, id, res.Permissions); err != nil {
			s.recordFailure(report, &mu, CascadeFailure{RoleID: id, Err: err.Error()})
		} else {
			s.refreshUsers(ctx, report, &mu, res)
		}

		children, err := s.repo.GetChildren(ctx, id)
		if err != nil {
			s.recordFailure(report, &mu, CascadeFailure{RoleID: id, Err: err.Error()})
			return
		}
		if len(children) == 0 {
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cascadeConcurrency)
		for _, child := range children {
			childID := child.ID
			g.Go(func() error {
				walk(gctx, childID)
				return nil
			})
		}
		_ = g.Wait()
	}

	walk(ctx, rootID)
	report.Duration = time.Since(start)

	s.metrics.ObserveCascade(report.Duration, report.RolesVisited, report.UsersUpdated, len(report.Failures))
	if report.Complete() {
		s.logger.Info("role cascade complete",
			slog.String("run_id", report.RunID),
			slog.Int64("root_role_id", rootID),
			slog.Int("roles", report.RolesVisited),
			slog.Int("users", report.UsersUpdated),
			slog.Duration("took", report.Duration))
	} else {
		s.logger.Warn("role cascade finished with failures",
			slog.String("run_id", report.RunID),
			slog.Int64("root_role_id", rootID),
			slog.Int("failures", len(report.Failures)))
	}
	return report
}

func (s *Service) refreshUsers(ctx context.Context, report *CascadeReport, mu *sync.Mutex, res Resolution) {
	userIDs, err := s.users.ListIDsByRole(ctx, res.RoleID)
	if err != nil {
		s.recordFailure(report, mu, CascadeFailure{RoleID: res.RoleID, Err: err.Error()})
		return
	}
	snap := Snapshot{
		RoleID:      res.RoleID,
		RoleName:    res.RoleName,
		RoleLevel:   res.Level,
		Permissions: res.Permissions,
	}
	for _, userID := range userIDs {
		if err := s.users.UpdateSnapshot(ctx, userID, snap); err != nil {
			s.recordFailure(report, mu, CascadeFailure{RoleID: res.RoleID, UserID: userID, Err: err.Error()})
			continue
		}
		mu.Lock()
		report.UsersUpdated++
		mu.Unlock()
	}
}

func (s *Service) recordFailure(report *CascadeReport, mu *sync.Mutex, failure CascadeFailure) {
	mu.Lock()
	report.Failures = append(report.Failures, failure)
	mu.Unlock()
}

func newRunID() string {
	return uuid.NewString()
}
