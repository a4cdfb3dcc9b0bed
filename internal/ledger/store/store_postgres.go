package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fintrail/internal/ledger/models"
	"fintrail/internal/platform/database"
	id "fintrail/pkg/domain"
	"fintrail/pkg/platform/sentinel"
	txcontext "fintrail/pkg/platform/tx"
)

// PostgresStore persists transactions in the transactions table.
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

const txnColumns = `id, user_id, reference, transaction_type, amount_minor, currency, status,
	description, recipient_account, recipient_name, created_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			user_id, reference, transaction_type, amount_minor, currency, status,
			description, recipient_account, recipient_name, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		int64(t.UserID), t.Reference, string(t.Type), t.AmountMinor, t.Currency, string(t.Status),
		nullString(t.Description), nullString(t.RecipientAccount), nullString(t.RecipientName), t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create transaction: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id = $1`, int64(txID))
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find transaction: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, offset, limit int) ([]models.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC OFFSET $2`
	args := []any{int64(userID), offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByUser(ctx context.Context, userID id.UserID) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM transactions WHERE user_id = $1`, int64(userID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID id.UserID) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM transactions WHERE user_id = $1`, int64(userID))
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var (
		t                               models.Transaction
		txType, status                  string
		description, account, recipient sql.NullString
		completed                       sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Reference, &txType, &t.AmountMinor, &t.Currency, &status,
		&description, &account, &recipient, &t.CreatedAt, &completed); err != nil {
		return models.Transaction{}, err
	}
	t.Type = models.Type(txType)
	t.Status = models.Status(status)
	t.Description = description.String
	t.RecipientAccount = account.String
	t.RecipientName = recipient.String
	if completed.Valid {
		v := completed.Time
		t.CompletedAt = &v
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
