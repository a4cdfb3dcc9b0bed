package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	txcontext "fintrail/pkg/platform/tx"
)

const defaultBatchSize = 500

// Store implements audit.Store on the audit_logs table.
//
// Retention operations walk candidate rows in id order and touch them in
// small batches, so a sweep never holds locks beyond the rows it is changing
// and never blocks request-path appends.
type Store struct {
	db        *sql.DB
	batchSize int
}

func New(db *sql.DB) *Store {
	return &Store{db: db, batchSize: defaultBatchSize}
}

// WithBatchSize overrides the retention batch size.
func (s *Store) WithBatchSize(n int) *Store {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const selectColumns = `id, actor_user_id, actor_email, action, resource_type, resource_id,
	description, metadata, ip_address, user_agent, recorded_at,
	cloud_provider, region, availability_zone`

// Append inserts a new audit row. The store assigns id and recorded_at.
func (s *Store) Append(ctx context.Context, rec audit.Record) (audit.Record, error) {
	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return audit.Record{}, fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (
			actor_user_id, actor_email, action, resource_type, resource_id,
			description, metadata, ip_address, user_agent,
			cloud_provider, region, availability_zone
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12)
		RETURNING id, recorded_at
	`
	row := s.execer(ctx).QueryRowContext(ctx, query,
		rec.ActorUserID.Ptr(),
		nullString(rec.ActorEmail),
		string(rec.Action),
		rec.ResourceType,
		rec.ResourceID,
		rec.Description,
		metadata,
		nullString(rec.IPAddress),
		nullString(rec.UserAgent),
		rec.CloudProvider,
		rec.Region,
		nullString(rec.AvailabilityZone),
	)
	var recordID int64
	var recordedAt time.Time
	if err := row.Scan(&recordID, &recordedAt); err != nil {
		if isIntegrityViolation(err) {
			return audit.Record{}, fmt.Errorf("insert audit record: %w: %w", audit.ErrRecordRejected, err)
		}
		return audit.Record{}, fmt.Errorf("insert audit record: %w", err)
	}
	rec.ID = audit.RecordID(recordID)
	rec.Timestamp = recordedAt.UTC()
	return rec, nil
}

// List returns matching records newest first.
func (s *Store) List(ctx context.Context, f audit.Filter, p audit.Page) ([]audit.Record, error) {
	p = p.Normalize()
	where, args := buildWhere(f)
	args = append(args, p.Limit, p.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs
		%s
		ORDER BY recorded_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, selectColumns, where, len(args)-1, len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) Count(ctx context.Context, f audit.Filter) (int, error) {
	where, args := buildWhere(f)
	query := "SELECT COUNT(*) FROM audit_logs " + where

	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// PurgeBefore deletes records older than cutoff batch by batch. A failing
// batch is retried row by row so one bad row does not stop the sweep.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var (
		purged int
		lastID int64
		errs   []error
	)
	for {
		ids, err := s.selectIDs(ctx, `
			SELECT id FROM audit_logs
			WHERE recorded_at < $1 AND id > $2
			ORDER BY id
			LIMIT $3
		`, cutoff, lastID, s.batchSize)
		if err != nil {
			return purged, errors.Join(append(errs, fmt.Errorf("select expired audit records: %w", err))...)
		}
		if len(ids) == 0 {
			break
		}
		lastID = ids[len(ids)-1]

		res, err := s.execer(ctx).ExecContext(ctx,
			`DELETE FROM audit_logs WHERE id = ANY($1) AND recorded_at < $2`,
			pq.Array(ids), cutoff)
		if err == nil {
			purged += rowsAffected(res)
			continue
		}

		for _, recordID := range ids {
			res, err := s.execer(ctx).ExecContext(ctx,
				`DELETE FROM audit_logs WHERE id = $1 AND recorded_at < $2`, recordID, cutoff)
			if err != nil {
				errs = append(errs, fmt.Errorf("delete audit record %d: %w", recordID, err))
				continue
			}
			purged += rowsAffected(res)
		}
	}
	return purged, errors.Join(errs...)
}

// AnonymizeBefore scrubs email snapshots older than cutoff, one row per
// statement. The guard in the UPDATE keeps a re-run from matching rows that
// were already scrubbed.
func (s *Store) AnonymizeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var (
		anonymized int
		lastID     int64
		errs       []error
	)
	for {
		rows, err := s.execer(ctx).QueryContext(ctx, `
			SELECT id, actor_user_id FROM audit_logs
			WHERE recorded_at < $1
			  AND actor_email IS NOT NULL
			  AND actor_email NOT LIKE '%@anonymized.local'
			  AND id > $2
			ORDER BY id
			LIMIT $3
		`, cutoff, lastID, s.batchSize)
		if err != nil {
			return anonymized, errors.Join(append(errs, fmt.Errorf("select aged audit records: %w", err))...)
		}
		type candidate struct {
			id    int64
			actor sql.NullInt64
		}
		var batch []candidate
		for rows.Next() {
			var c candidate
			if err := rows.Scan(&c.id, &c.actor); err != nil {
				rows.Close()
				return anonymized, errors.Join(append(errs, fmt.Errorf("scan aged audit record: %w", err))...)
			}
			batch = append(batch, c)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return anonymized, errors.Join(append(errs, fmt.Errorf("iterate aged audit records: %w", err))...)
		}
		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].id

		for _, c := range batch {
			placeholder := audit.AnonymizedEmail(id.UserID(c.actor.Int64))
			res, err := s.execer(ctx).ExecContext(ctx, `
				UPDATE audit_logs SET actor_email = $2
				WHERE id = $1
				  AND actor_email IS NOT NULL
				  AND actor_email NOT LIKE '%@anonymized.local'
			`, c.id, placeholder)
			if err != nil {
				errs = append(errs, fmt.Errorf("anonymize audit record %d: %w", c.id, err))
				continue
			}
			anonymized += rowsAffected(res)
		}
	}
	return anonymized, errors.Join(errs...)
}

func (s *Store) DetachActor(ctx context.Context, userID id.UserID) (int, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE audit_logs SET actor_user_id = NULL WHERE actor_user_id = $1`, int64(userID))
	if err != nil {
		return 0, fmt.Errorf("detach audit actor: %w", err)
	}
	return rowsAffected(res), nil
}

func (s *Store) selectIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

func buildWhere(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.UserID.IsNil() {
		add("actor_user_id = $%d", int64(f.UserID))
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if !f.From.IsZero() {
		add("recorded_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("recorded_at < $%d", f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	records := []audit.Record{}
	for rows.Next() {
		var (
			rec        audit.Record
			recordID   int64
			actor      sql.NullInt64
			email      sql.NullString
			action     string
			resourceID sql.NullInt64
			metadata   []byte
			ip         sql.NullString
			ua         sql.NullString
			zone       sql.NullString
		)
		if err := rows.Scan(
			&recordID, &actor, &email, &action, &rec.ResourceType, &resourceID,
			&rec.Description, &metadata, &ip, &ua, &rec.Timestamp,
			&rec.CloudProvider, &rec.Region, &zone,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.ID = audit.RecordID(recordID)
		rec.ActorUserID = id.UserID(actor.Int64)
		rec.ActorEmail = email.String
		rec.Action = audit.Action(action)
		if resourceID.Valid {
			v := resourceID.Int64
			rec.ResourceID = &v
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		rec.IPAddress = ip.String
		rec.UserAgent = ua.String
		rec.AvailabilityZone = zone.String
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

// encodeMetadata returns the JSON text for the jsonb column, or nil for an
// empty bag. Text is used instead of []byte so both drivers bind it as json.
func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// integrityViolationClass is the SQLSTATE class for constraint violations.
const integrityViolationClass = "23"

func isIntegrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, integrityViolationClass)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code.Class()) == integrityViolationClass
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
