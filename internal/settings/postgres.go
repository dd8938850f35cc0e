package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"
)

// Schema is the SQL DDL for the voice_settings table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS voice_settings (
    user_id                  TEXT PRIMARY KEY,
    wake_word                TEXT NOT NULL,
    sensitivity              DOUBLE PRECISION NOT NULL,
    voice_activation_enabled BOOLEAN NOT NULL DEFAULT false,
    voice_type               TEXT NOT NULL,
    voice_speed              DOUBLE PRECISION NOT NULL,
    custom_commands          JSONB NOT NULL DEFAULT '[]',
    privacy                  JSONB NOT NULL DEFAULT '{}',
    created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
//
// Concurrent Get calls for the same user share one query. Update reads the
// current row and upserts the merged result; concurrent updates for one user
// are last-writer-wins.
type PostgresStore struct {
	db    DB
	reads singleflight.Group
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
		return fmt.Errorf("settings: migrate: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, userID string) (VoiceSettings, error) {
	v, err, _ := s.reads.Do(userID, func() (any, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		return VoiceSettings{}, err
	}
	return clone(v.(VoiceSettings)), nil
}

func (s *PostgresStore) load(ctx context.Context, userID string) (VoiceSettings, error) {
	const query = `
		SELECT wake_word, sensitivity, voice_activation_enabled, voice_type,
		       voice_speed, custom_commands, privacy, updated_at
		FROM voice_settings
		WHERE user_id = $1`

	var vs VoiceSettings
	var cmdsJSON, privacyJSON []byte
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&vs.WakeWord, &vs.Sensitivity, &vs.VoiceActivationEnabled, &vs.VoiceType,
		&vs.VoiceSpeed, &cmdsJSON, &privacyJSON, &vs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Defaults(), nil
		}
		return VoiceSettings{}, persistErr("get", err)
	}
	if err := json.Unmarshal(cmdsJSON, &vs.CustomCommands); err != nil {
		return VoiceSettings{}, persistErr("unmarshal custom_commands", err)
	}
	if err := json.Unmarshal(privacyJSON, &vs.Privacy); err != nil {
		return VoiceSettings{}, persistErr("unmarshal privacy", err)
	}
	return Clamp(vs), nil
}

// Update implements [Store].
func (s *PostgresStore) Update(ctx context.Context, userID string, p Patch) (VoiceSettings, error) {
	base, err := s.load(ctx, userID)
	if err != nil {
		return VoiceSettings{}, err
	}
	next, err := Apply(base, p)
	if err != nil {
		return VoiceSettings{}, err
	}
	return s.upsert(ctx, userID, next)
}

// Reset implements [Store].
func (s *PostgresStore) Reset(ctx context.Context, userID string) (VoiceSettings, error) {
	return s.upsert(ctx, userID, Defaults())
}

func (s *PostgresStore) upsert(ctx context.Context, userID string, vs VoiceSettings) (VoiceSettings, error) {
	cmdsJSON, err := json.Marshal(vs.CustomCommands)
	if err != nil {
		return VoiceSettings{}, fmt.Errorf("settings: marshal custom_commands: %w", err)
	}
	privacyJSON, err := json.Marshal(vs.Privacy)
	if err != nil {
		return VoiceSettings{}, fmt.Errorf("settings: marshal privacy: %w", err)
	}

	const query = `
		INSERT INTO voice_settings (
			user_id, wake_word, sensitivity, voice_activation_enabled,
			voice_type, voice_speed, custom_commands, privacy
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id) DO UPDATE SET
			wake_word = EXCLUDED.wake_word,
			sensitivity = EXCLUDED.sensitivity,
			voice_activation_enabled = EXCLUDED.voice_activation_enabled,
			voice_type = EXCLUDED.voice_type,
			voice_speed = EXCLUDED.voice_speed,
			custom_commands = EXCLUDED.custom_commands,
			privacy = EXCLUDED.privacy,
			updated_at = now()
		RETURNING updated_at`

	err = s.db.QueryRow(ctx, query,
		userID, vs.WakeWord, vs.Sensitivity, vs.VoiceActivationEnabled,
		vs.VoiceType, vs.VoiceSpeed, cmdsJSON, privacyJSON,
	).Scan(&vs.UpdatedAt)
	if err != nil {
		return VoiceSettings{}, persistErr("upsert", err)
	}
	return vs, nil
}
