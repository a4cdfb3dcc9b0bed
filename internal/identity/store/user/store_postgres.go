package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fintrail/internal/identity/models"
	"fintrail/internal/platform/database"
	id "fintrail/pkg/domain"
	"fintrail/pkg/platform/sentinel"
	txcontext "fintrail/pkg/platform/tx"
)

// PostgresStore persists users in the users table.
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

const userColumns = `id, email, hashed_password, first_name, last_name, phone_number, id_number,
	role, is_active, is_verified, mfa_enabled, mfa_secret, consent_given, consent_date,
	data_retention_until, created_at, updated_at, last_login`

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (
			email, hashed_password, first_name, last_name, phone_number, id_number,
			role, is_active, is_verified, mfa_enabled, mfa_secret, consent_given, consent_date
		)
		VALUES (lower($1), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		u.Email, u.HashedPassword, u.FirstName, u.LastName,
		nullString(u.PhoneNumber), nullString(u.IDNumber), string(u.Role),
		u.IsActive, u.IsVerified, u.MFAEnabled, nullString(u.MFASecret),
		u.ConsentGiven, u.ConsentDate,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, int64(userID))
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

// EmailForUser implements audit.Directory.
func (s *PostgresStore) EmailForUser(ctx context.Context, userID id.UserID) (string, error) {
	var email string
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT email FROM users WHERE id = $1`, int64(userID)).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("email for user: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("email for user: %w", err)
	}
	return email, nil
}

func (s *PostgresStore) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users SET
			email = lower($2), hashed_password = $3, first_name = $4, last_name = $5,
			phone_number = $6, id_number = $7, role = $8, is_active = $9, is_verified = $10,
			mfa_enabled = $11, mfa_secret = $12, consent_given = $13, consent_date = $14,
			data_retention_until = $15, last_login = $16, updated_at = now()
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		int64(u.ID), u.Email, u.HashedPassword, u.FirstName, u.LastName,
		nullString(u.PhoneNumber), nullString(u.IDNumber), string(u.Role),
		u.IsActive, u.IsVerified, u.MFAEnabled, nullString(u.MFASecret),
		u.ConsentGiven, u.ConsentDate, u.DataRetentionUntil, u.LastLogin,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("update user: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireOneRow(res, "update user")
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, int64(userID))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireOneRow(res, "delete user")
}

func (s *PostgresStore) ListRetentionExpired(ctx context.Context, now time.Time) ([]id.UserID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id FROM users
		WHERE data_retention_until IS NOT NULL AND data_retention_until < $1
		ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("list retention expired users: %w", err)
	}
	defer rows.Close()

	var ids []id.UserID
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id.UserID(v))
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE consent_given),
			count(*) FILTER (WHERE mfa_enabled)
		FROM users`).Scan(&st.Total, &st.Consented, &st.MFA)
	if err != nil {
		return models.Stats{}, fmt.Errorf("user stats: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                       models.User
		phone, idNumber, secret sql.NullString
		role                    string
		consentDate, retention  sql.NullTime
		lastLogin               sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.HashedPassword, &u.FirstName, &u.LastName, &phone, &idNumber,
		&role, &u.IsActive, &u.IsVerified, &u.MFAEnabled, &secret, &u.ConsentGiven, &consentDate,
		&retention, &u.CreatedAt, &u.UpdatedAt, &lastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.PhoneNumber = phone.String
	u.IDNumber = idNumber.String
	u.MFASecret = secret.String
	u.Role = id.Role(role)
	u.ConsentDate = timePtr(consentDate)
	u.DataRetentionUntil = timePtr(retention)
	u.LastLogin = timePtr(lastLogin)
	return &u, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}
