package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fintrail/internal/consent/models"
	id "fintrail/pkg/domain"
	"fintrail/pkg/platform/sentinel"
	txcontext "fintrail/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Upsert(ctx context.Context, c *models.Consent) error {
	query := `
		INSERT INTO consents (user_id, purpose, granted, granted_at, withdrawn_at, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, purpose) DO UPDATE SET
			granted = EXCLUDED.granted,
			granted_at = EXCLUDED.granted_at,
			withdrawn_at = EXCLUDED.withdrawn_at,
			ip_address = EXCLUDED.ip_address
		RETURNING id
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		int64(c.UserID), string(c.Purpose), c.Granted, c.GrantedAt, c.WithdrawnAt,
		sql.NullString{String: c.IPAddress, Valid: c.IPAddress != ""},
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upsert consent: %w", err)
	}
	return nil
}

const consentColumns = `id, user_id, purpose, granted, granted_at, withdrawn_at, ip_address`

func (s *PostgresStore) Find(ctx context.Context, userID id.UserID, purpose id.ConsentPurpose) (*models.Consent, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE user_id = $1 AND purpose = $2`,
		int64(userID), string(purpose))
	c, err := scanConsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find consent: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]models.Consent, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE user_id = $1 ORDER BY id`, int64(userID))
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	out := []models.Consent{}
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID id.UserID) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM consents WHERE user_id = $1`, int64(userID))
	if err != nil {
		return 0, fmt.Errorf("delete consents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete consents: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (models.Consent, error) {
	var (
		c                    models.Consent
		purpose              string
		grantedAt, withdrawn sql.NullTime
		ip                   sql.NullString
	)
	if err := row.Scan(&c.ID, &c.UserID, &purpose, &c.Granted, &grantedAt, &withdrawn, &ip); err != nil {
		return models.Consent{}, err
	}
	c.Purpose = id.ConsentPurpose(purpose)
	if grantedAt.Valid {
		v := grantedAt.Time
		c.GrantedAt = &v
	}
	if withdrawn.Valid {
		v := withdrawn.Time
		c.WithdrawnAt = &v
	}
	c.IPAddress = ip.String
	return c, nil
}
