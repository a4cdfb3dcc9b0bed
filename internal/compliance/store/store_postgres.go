package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"fintrail/internal/compliance/models"
	id "fintrail/pkg/domain"
	txcontext "fintrail/pkg/platform/tx"
)

type PostgresInventory struct {
	db *sql.DB
}

func NewPostgresInventory(db *sql.DB) *PostgresInventory {
	return &PostgresInventory{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresInventory) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresInventory) Upsert(ctx context.Context, e *models.InventoryEntry) error {
	query := `
		INSERT INTO data_inventory (data_category, data_type, purpose, legal_basis, retention_period,
			storage_location, cloud_provider, region, encrypted, access_roles, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (data_category, data_type) DO UPDATE SET
			purpose = EXCLUDED.purpose,
			legal_basis = EXCLUDED.legal_basis,
			retention_period = EXCLUDED.retention_period,
			storage_location = EXCLUDED.storage_location,
			cloud_provider = EXCLUDED.cloud_provider,
			region = EXCLUDED.region,
			encrypted = EXCLUDED.encrypted,
			access_roles = EXCLUDED.access_roles,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		string(e.Category), e.DataType, e.Purpose, e.LegalBasis, e.RetentionPeriod,
		e.StorageLocation, e.CloudProvider, e.Region, e.Encrypted, pq.Array(roleStrings(e.AccessRoles)), e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("upsert inventory entry: %w", err)
	}
	return nil
}

func (s *PostgresInventory) List(ctx context.Context) ([]models.InventoryEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, data_category, data_type, purpose, legal_basis, retention_period,
			storage_location, cloud_provider, region, encrypted, access_roles, updated_at
		FROM data_inventory
		ORDER BY data_category, data_type
	`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var out []models.InventoryEntry
	for rows.Next() {
		var (
			e        models.InventoryEntry
			category string
			roles    pq.StringArray
		)
		if err := rows.Scan(&e.ID, &category, &e.DataType, &e.Purpose, &e.LegalBasis, &e.RetentionPeriod,
			&e.StorageLocation, &e.CloudProvider, &e.Region, &e.Encrypted, &roles, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory entry: %w", err)
		}
		e.Category = models.Category(category)
		for _, r := range roles {
			e.AccessRoles = append(e.AccessRoles, id.Role(r))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return out, nil
}

func (s *PostgresInventory) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM data_inventory`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count inventory: %w", err)
	}
	return n, nil
}

func roleStrings(roles []id.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
