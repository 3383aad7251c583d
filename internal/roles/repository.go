package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, level, parent_role_id, enterprise_id, permissions, effective_permissions, deleted_at, created_at, updated_at`

// GetRole returns a role by id, including soft-deleted rows so ancestor
// chains stay resolvable.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

// GetRoleByName returns the role carrying the given unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	return scanRole(row)
}

// GetChildren returns the active roles whose parent is the given role.
func (r *Repository) GetChildren(ctx context.Context, parentID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE parent_role_id = $1 AND deleted_at IS NULL ORDER BY id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// ListRoles returns all active roles, optionally scoped to an enterprise.
func (r *Repository) ListRoles(ctx context.Context, enterpriseID *int64) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE deleted_at IS NULL`
	args := []any{}
	if enterpriseID != nil {
		query += ` AND enterprise_id = $1`
		args = append(args, *enterpriseID)
	}
	query += ` ORDER BY id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	own, err := json.Marshal(orEmpty(role.Permissions))
	if err != nil {
		return Role{}, fmt.Errorf("roles: marshal permissions: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, level, parent_role_id, enterprise_id, permissions, effective_permissions)
		VALUES ($1, $2, $3, $4, $5, '[]')
		RETURNING `+roleColumns,
		role.Name, string(role.Level), role.ParentRoleID, role.EnterpriseID, own)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, mapConflict(err)
	}
	return created, nil
}

// UpdateRole persists name, level, parent and own permissions for a role.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	own, err := json.Marshal(orEmpty(role.Permissions))
	if err != nil {
		return Role{}, fmt.Errorf("roles: marshal permissions: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, level = $3, parent_role_id = $4, permissions = $5, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+roleColumns,
		role.ID, role.Name, string(role.Level), role.ParentRoleID, own)
	updated, err := scanRole(row)
	if err != nil {
		return Role{}, mapConflict(err)
	}
	return updated, nil
}

// SetEffective overwrites the cached effective permission set for a role.
func (r *Repository) SetEffective(ctx context.Context, id int64, effective PermissionSet) error {
	data, err := json.Marshal(orEmpty(effective))
	if err != nil {
		return fmt.Errorf("roles: marshal effective permissions: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET effective_permissions = $2, updated_at = now() WHERE id = $1`, id, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SoftDeleteRole marks a role as deleted without removing the row.
func (r *Repository) SoftDeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountActiveChildren counts active roles referencing this role as parent.
func (r *Repository) CountActiveChildren(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM roles WHERE parent_role_id = $1 AND deleted_at IS NULL`, id).Scan(&count)
	return count, err
}

var _ RepositoryPort = (*Repository)(nil)

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role      Role
		level     string
		own       []byte
		effective []byte
		deletedAt *time.Time
	)
	err := row.Scan(&role.ID, &role.Name, &level, &role.ParentRoleID, &role.EnterpriseID, &own, &effective, &deletedAt, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	role.Level = Level(level)
	role.DeletedAt = deletedAt
	if err := json.Unmarshal(own, &role.Permissions); err != nil {
		return Role{}, fmt.Errorf("roles: unmarshal permissions for role %d: %w", role.ID, err)
	}
	if err := json.Unmarshal(effective, &role.Effective); err != nil {
		return Role{}, fmt.Errorf("roles: unmarshal effective permissions for role %d: %w", role.ID, err)
	}
	return role, nil
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("roles: duplicate name: %w", shared.ErrConflict)
	}
	return err
}

func orEmpty(ps PermissionSet) PermissionSet {
	if ps == nil {
		return PermissionSet{}
	}
	return ps
}
