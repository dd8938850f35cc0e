package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the command_attempts table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS command_attempts (
    id                      TEXT PRIMARY KEY,
    user_id                 TEXT NOT NULL,
    transcript              TEXT NOT NULL DEFAULT '',
    intent                  TEXT,
    entities                JSONB,
    status                  TEXT NOT NULL CHECK (status IN ('processing', 'successful', 'failed')),
    error_message           TEXT NOT NULL DEFAULT '',
    response                JSONB,
    action_taken            JSONB,
    audio_reference         TEXT NOT NULL DEFAULT '',
    processing_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    confidence_score        DOUBLE PRECISION,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_command_attempts_user_created ON command_attempts(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_command_attempts_user_intent ON command_attempts(user_id, intent);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Structured fields are
// stored as JSONB.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore]. Call [PostgresStore.Migrate]
// before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

const selectColumns = `
	id, user_id, transcript, intent, entities, status, error_message,
	response, action_taken, audio_reference, processing_time_seconds,
	confidence_score, created_at, updated_at`

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, a Attempt) error {
	if err := validateAppend(a); err != nil {
		return err
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO command_attempts (id, user_id, transcript, status, audio_reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := s.db.Exec(ctx, query, a.ID, a.UserID, a.Transcript, string(a.Status), a.AudioReference, createdAt); err != nil {
		return persistErr("append", err)
	}
	return nil
}

// UpdateIntermediate implements [Store].
func (s *PostgresStore) UpdateIntermediate(ctx context.Context, id, transcript string) error {
	const query = `
		UPDATE command_attempts SET transcript = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'`
	tag, err := s.db.Exec(ctx, query, id, transcript)
	if err != nil {
		return persistErr("update transcript", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrTerminal(ctx, id)
	}
	return nil
}

// UpdateTerminal implements [Store]. The status guard in the WHERE clause
// makes the terminal write a single conditional statement.
func (s *PostgresStore) UpdateTerminal(ctx context.Context, id string, t Terminal) error {
	if err := validateTerminal(t); err != nil {
		return err
	}
	entities, err := marshalNullable(t.Entities)
	if err != nil {
		return fmt.Errorf("history: marshal entities: %w", err)
	}
	response, err := marshalNullable(t.Response)
	if err != nil {
		return fmt.Errorf("history: marshal response: %w", err)
	}
	var action []byte
	if t.ActionTaken != nil {
		if action, err = json.Marshal(t.ActionTaken); err != nil {
			return fmt.Errorf("history: marshal action: %w", err)
		}
	}

	const query = `
		UPDATE command_attempts SET
			status = $2,
			transcript = COALESCE($3, transcript),
			intent = $4,
			entities = $5,
			error_message = $6,
			response = $7,
			action_taken = $8,
			processing_time_seconds = $9,
			confidence_score = $10,
			audio_reference = $11,
			updated_at = now()
		WHERE id = $1 AND status = 'processing'`
	tag, err := s.db.Exec(ctx, query,
		id, string(t.Status), t.Transcript, t.Intent, entities,
		t.ErrorMessage, response, action, t.ProcessingTimeSeconds, t.ConfidenceScore,
		t.AudioReference,
	)
	if err != nil {
		return persistErr("update terminal", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrTerminal(ctx, id)
	}
	return nil
}

// missOrTerminal explains why a guarded update touched no rows.
func (s *PostgresStore) missOrTerminal(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM command_attempts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return persistErr("lookup status", err)
	}
	return ErrAlreadyTerminal
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, userID, id string) (Attempt, error) {
	query := `SELECT` + selectColumns + ` FROM command_attempts WHERE id = $1 AND user_id = $2`
	a, err := scanAttempt(s.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, persistErr("get", err)
	}
	return a, nil
}

// Query implements [Store].
func (s *PostgresStore) Query(ctx context.Context, userID string, f Filter, page, limit int) (Page, error) {
	page, limit = NormalizePaging(page, limit)
	where, args := buildWhere(userID, f)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM command_attempts WHERE `+where, args...).Scan(&total); err != nil {
		return Page{}, persistErr("count", err)
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT%s FROM command_attempts WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		selectColumns, where, len(args)-1, len(args))
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return Page{}, persistErr("query", err)
	}
	defer rows.Close()

	items := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return Page{}, persistErr("query scan", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return Page{}, persistErr("query", err)
	}
	return Page{Items: items, Pagination: newPagination(page, limit, total)}, nil
}

// buildWhere returns the WHERE clause and its positional arguments.
func buildWhere(userID string, f Filter) (string, []any) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Intent != "" {
		add("intent = $%d", f.Intent)
	}
	return strings.Join(conds, " AND "), args
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM command_attempts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return persistErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear implements [Store].
func (s *PostgresStore) Clear(ctx context.Context, userID string) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM command_attempts WHERE user_id = $1`, userID)
	if err != nil {
		return 0, persistErr("clear", err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeOlderThan implements [Store].
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	const query = `
		DELETE FROM command_attempts
		WHERE user_id = $1 AND status <> 'processing' AND created_at < $2`
	tag, err := s.db.Exec(ctx, query, userID, cutoff)
	if err != nil {
		return 0, persistErr("purge", err)
	}
	return int(tag.RowsAffected()), nil
}

// Users implements [Store].
func (s *PostgresStore) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT user_id FROM command_attempts ORDER BY user_id`)
	if err != nil {
		return nil, persistErr("users", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, persistErr("users scan", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("users", err)
	}
	return users, nil
}

func scanAttempt(row pgx.Row) (Attempt, error) {
	var (
		a                               Attempt
		status                          string
		entities, response, actionTaken []byte
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.Transcript, &a.Intent, &entities, &status, &a.ErrorMessage,
		&response, &actionTaken, &a.AudioReference, &a.ProcessingTimeSeconds,
		&a.ConfidenceScore, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	if err := unmarshalNullable(entities, &a.Entities); err != nil {
		return Attempt{}, fmt.Errorf("unmarshal entities: %w", err)
	}
	if err := unmarshalNullable(response, &a.Response); err != nil {
		return Attempt{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(actionTaken) > 0 {
		a.ActionTaken = &Action{}
		if err := json.Unmarshal(actionTaken, a.ActionTaken); err != nil {
			return Attempt{}, fmt.Errorf("unmarshal action: %w", err)
		}
	}
	return a, nil
}

// marshalNullable encodes m, mapping nil to SQL NULL.
func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalNullable(data []byte, out *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
