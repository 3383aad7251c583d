package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// Repository provides PostgreSQL backed persistence for users. It also
// implements roles.UserStorePort so the cascade can refresh snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, full_name, email, phone, password_hash, enterprise_id, workspace_id, team_id,
	role_id, role_name, role_level, permissions_override, status, created_at, updated_at`

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByEmail returns a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// ListUsers returns one page of non-deleted users plus the total count.
func (r *Repository) ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE status <> 'deleted'`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE status <> 'deleted' ORDER BY id LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// CreateUser inserts a new user.
func (r *Repository) CreateUser(ctx context.Context, user User) (User, error) {
	override, err := json.Marshal(emptyIfNil(user.PermissionsOverride))
	if err != nil {
		return User{}, fmt.Errorf("users: marshal permissions override: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (full_name, email, phone, password_hash, enterprise_id, workspace_id, team_id,
			role_id, role_name, role_level, permissions_override, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'active')
		RETURNING `+userColumns,
		user.FullName, user.Email, user.Phone, user.PasswordHash, user.EnterpriseID, user.WorkspaceID, user.TeamID,
		user.RoleID, user.RoleName, string(user.RoleLevel), override)
	created, err := scanUser(row)
	if err != nil {
		return User{}, mapUserConflict(err)
	}
	return created, nil
}

// UpdateUser persists profile fields and status for a user.
func (r *Repository) UpdateUser(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET full_name = $2, phone = $3, password_hash = $4, workspace_id = $5, team_id = $6, status = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.FullName, user.Phone, user.PasswordHash, user.WorkspaceID, user.TeamID, string(user.Status))
	updated, err := scanUser(row)
	if err != nil {
		return User{}, mapUserConflict(err)
	}
	return updated, nil
}

// SetRole re-points the user's role and overwrites the cached snapshot in a
// single statement so a reader never sees the new role with a stale snapshot.
func (r *Repository) SetRole(ctx context.Context, userID int64, snap roles.Snapshot) error {
	override, err := json.Marshal(emptyIfNil(snap.Permissions))
	if err != nil {
		return fmt.Errorf("users: marshal permissions override: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET role_id = $2, role_name = $3, role_level = $4, permissions_override = $5, updated_at = now()
		WHERE id = $1`,
		userID, snap.RoleID, snap.RoleName, string(snap.RoleLevel), override)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListIDsByRole returns ids of non-deleted users assigned the role.
func (r *Repository) ListIDsByRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE role_id = $1 AND status <> 'deleted' ORDER BY id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateSnapshot overwrites the cached permission snapshot for a user whose
// role assignment is unchanged.
func (r *Repository) UpdateSnapshot(ctx context.Context, userID int64, snap roles.Snapshot) error {
	return r.SetRole(ctx, userID, snap)
}

// CountActiveByRole counts active users assigned the role.
func (r *Repository) CountActiveByRole(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE role_id = $1 AND status = 'active'`, roleID).Scan(&count)
	return count, err
}

// CountByEnterprise counts non-deleted users in an enterprise.
func (r *Repository) CountByEnterprise(ctx context.Context, enterpriseID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE enterprise_id = $1 AND status <> 'deleted'`, enterpriseID).Scan(&count)
	return count, err
}

var _ roles.UserStorePort = (*Repository)(nil)

func scanUser(row pgx.Row) (User, error) {
	var (
		user     User
		level    string
		status   string
		override []byte
	)
	err := row.Scan(&user.ID, &user.FullName, &user.Email, &user.Phone, &user.PasswordHash,
		&user.EnterpriseID, &user.WorkspaceID, &user.TeamID,
		&user.RoleID, &user.RoleName, &level, &override, &status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	user.RoleLevel = roles.Level(level)
	user.Status = Status(status)
	if err := json.Unmarshal(override, &user.PermissionsOverride); err != nil {
		return User{}, fmt.Errorf("users: unmarshal permissions override for user %d: %w", user.ID, err)
	}
	return user, nil
}

func mapUserConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("users: duplicate email or phone: %w", shared.ErrConflict)
	}
	return err
}

func emptyIfNil(ps roles.PermissionSet) roles.PermissionSet {
	if ps == nil {
		return roles.PermissionSet{}
	}
	return ps
}
