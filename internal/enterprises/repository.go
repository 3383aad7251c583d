package enterprises

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcline-io/arcline-accounts/internal/platform/db"
	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// SeedRole describes one role planted at tenant bootstrap.
type SeedRole struct {
	Name       string
	Level      roles.Level
	ParentName string
	Own        roles.PermissionSet
	Effective  roles.PermissionSet
}

// Repository provides PostgreSQL backed persistence for enterprises.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateWithSeedRoles inserts the enterprise and plants any missing seed
// roles in one transaction, so a half-bootstrapped tenant is never visible.
// Seed roles are global; existing ones are left untouched.
func (r *Repository) CreateWithSeedRoles(ctx context.Context, name string, seeds []SeedRole) (Enterprise, error) {
	var ent Enterprise
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO enterprises (name) VALUES ($1) RETURNING id, name, created_at, updated_at`, name)
		if err := row.Scan(&ent.ID, &ent.Name, &ent.CreatedAt, &ent.UpdatedAt); err != nil {
			return err
		}
		ids := make(map[string]int64, len(seeds))
		for _, seed := range seeds {
			var parentID *int64
			if seed.ParentName != "" {
				id, ok := ids[seed.ParentName]
				if !ok {
					if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, seed.ParentName).Scan(&id); err != nil {
						return fmt.Errorf("enterprises: seed parent %q: %w", seed.ParentName, err)
					}
				}
				parentID = &id
			}
			own, err := json.Marshal(seed.Own)
			if err != nil {
				return err
			}
			effective, err := json.Marshal(seed.Effective)
			if err != nil {
				return err
			}
			var roleID int64
			err = tx.QueryRow(ctx, `
				INSERT INTO roles (name, level, parent_role_id, permissions, effective_permissions)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (name) DO UPDATE SET updated_at = roles.updated_at
				RETURNING id`,
				seed.Name, string(seed.Level), parentID, own, effective).Scan(&roleID)
			if err != nil {
				return fmt.Errorf("enterprises: seed role %q: %w", seed.Name, err)
			}
			ids[seed.Name] = roleID
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Enterprise{}, fmt.Errorf("enterprises: duplicate name: %w", shared.ErrConflict)
		}
		return Enterprise{}, err
	}
	return ent, nil
}

// GetEnterprise returns an enterprise by id.
func (r *Repository) GetEnterprise(ctx context.Context, id int64) (Enterprise, error) {
	var ent Enterprise
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM enterprises WHERE id = $1`, id).
		Scan(&ent.ID, &ent.Name, &ent.CreatedAt, &ent.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enterprise{}, shared.ErrNotFound
		}
		return Enterprise{}, err
	}
	return ent, nil
}

// ListEnterprises returns all enterprises.
func (r *Repository) ListEnterprises(ctx context.Context) ([]Enterprise, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM enterprises ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Enterprise
	for rows.Next() {
		var ent Enterprise
		if err := rows.Scan(&ent.ID, &ent.Name, &ent.CreatedAt, &ent.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, ent)
	}
	return list, rows.Err()
}
