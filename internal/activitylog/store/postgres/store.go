package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"catalogue/internal/activitylog/models"
	"catalogue/pkg/platform/sentinel"
	txcontext "catalogue/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresStore persists activity-log entries in the activity_logs table.
type PostgresStore struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed event store.
func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the activity_logs table and its indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate activity_logs: %w", err)
	}
	return nil
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

const selectColumns = `
	SELECT id, event_type, log_category, audience_types, timestamp, actor_id,
		   version_id, version_label, plain_text, html, detailed_text,
		   detailed_html, admin_comment, field_diffs
	FROM activity_logs
`

func (s *PostgresStore) Search(ctx context.Context, q models.Query) ([]*models.EventRecord, error) {
	query := selectColumns + `
		WHERE version_id = ANY($1)
		  AND log_category = $2
		  AND $3 = ANY(audience_types)
		ORDER BY timestamp DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query,
		pq.Array(q.VersionIDs),
		string(q.LogCategory),
		string(q.AudienceType),
	)
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}
	defer rows.Close()

	var events []*models.EventRecord
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity logs: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e *models.EventRecord) error {
	diffs, err := marshalDiffs(e.FieldDiffs)
	if err != nil {
		return err
	}
	audiences := make([]string, len(e.AudienceTypes))
	for i, a := range e.AudienceTypes {
		audiences[i] = string(a)
	}

	query := `
		INSERT INTO activity_logs (
			id, event_type, log_category, audience_types, timestamp, actor_id,
			version_id, version_label, plain_text, html, detailed_text,
			detailed_html, admin_comment, field_diffs
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := s.execer(ctx).ExecContext(ctx, query,
			e.ID,
			string(e.EventType),
			string(e.LogCategory),
			pq.Array(audiences),
			e.Timestamp,
			e.ActorID,
			e.VersionID,
			e.VersionLabel,
			e.PlainText,
			e.HTML,
			e.DetailedText,
			e.DetailedHTML,
			e.AdminComment,
			diffs,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert activity log: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.EventRecord, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM activity_logs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete activity log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete activity log: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.EventRecord, error) {
	var (
		e         models.EventRecord
		eventType string
		category  string
		audiences pq.StringArray
		diffs     []byte
	)
	err := row.Scan(
		&e.ID,
		&eventType,
		&category,
		&audiences,
		&e.Timestamp,
		&e.ActorID,
		&e.VersionID,
		&e.VersionLabel,
		&e.PlainText,
		&e.HTML,
		&e.DetailedText,
		&e.DetailedHTML,
		&e.AdminComment,
		&diffs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan activity log: %w", err)
	}
	e.EventType = models.EventType(eventType)
	e.LogCategory = models.LogCategory(category)
	e.AudienceTypes = make([]models.AudienceType, len(audiences))
	for i, a := range audiences {
		e.AudienceTypes[i] = models.AudienceType(a)
	}
	e.Timestamp = e.Timestamp.UTC()
	if len(diffs) > 0 {
		if err := json.Unmarshal(diffs, &e.FieldDiffs); err != nil {
			return nil, fmt.Errorf("unmarshal field diffs: %w", err)
		}
	}
	return &e, nil
}

func marshalDiffs(diffs []models.FieldDiff) (any, error) {
	if len(diffs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(diffs)
	if err != nil {
		return nil, fmt.Errorf("marshal field diffs: %w", err)
	}
	return b, nil
}
