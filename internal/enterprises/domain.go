package enterprises

import "time"

// Enterprise is the tenant root every workspace, team, user and
// enterprise-scoped role hangs off.
type Enterprise struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
