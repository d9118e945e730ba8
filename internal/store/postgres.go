package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrCanvasOwnership is returned when an upsert targets a canvas id that
	// belongs to a different user.
	ErrCanvasOwnership = errors.New("canvas belongs to another user")
	ErrEmailTaken      = errors.New("email already registered")
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, LOWER($3), $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ListCanvasesByUser returns the user's canvases, most recently updated first.
func (s *PostgresStore) ListCanvasesByUser(ctx context.Context, userID string) ([]Canvas, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, meta, blocks, created_at, updated_at
		FROM canvases
		WHERE user_id = $1
		ORDER BY updated_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	defer rows.Close()

	items := make([]Canvas, 0)
	for rows.Next() {
		var item Canvas
		var meta, blocks []byte
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &meta, &blocks, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan canvas: %w", err)
		}
		item.Meta = json.RawMessage(meta)
		item.Blocks = json.RawMessage(blocks)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canvases: %w", err)
	}
	return items, nil
}

// UpsertCanvas inserts item or updates the row with the same id. The update
// only applies when the existing row has the same owner; otherwise
// ErrCanvasOwnership is returned and nothing changes.
func (s *PostgresStore) UpsertCanvas(ctx context.Context, item Canvas) (Canvas, error) {
	var saved Canvas
	var meta, blocks []byte
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO canvases (id, user_id, title, meta, blocks)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET title=EXCLUDED.title, meta=EXCLUDED.meta, blocks=EXCLUDED.blocks, updated_at=NOW()
		WHERE canvases.user_id = EXCLUDED.user_id
		RETURNING id, user_id, title, meta, blocks, created_at, updated_at
	`, item.ID, item.UserID, item.Title, string(item.Meta), string(item.Blocks)).Scan(
		&saved.ID, &saved.UserID, &saved.Title, &meta, &blocks, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Canvas{}, ErrCanvasOwnership
	}
	if err != nil {
		return Canvas{}, fmt.Errorf("upsert canvas: %w", err)
	}
	saved.Meta = json.RawMessage(meta)
	saved.Blocks = json.RawMessage(blocks)
	return saved, nil
}

func (s *PostgresStore) InsertSurveyResponse(ctx context.Context, item SurveyResponse) (SurveyResponse, error) {
	saved := item
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO survey_responses (id, user_id, payload)
		VALUES ($1, $2, $3::jsonb)
		RETURNING created_at
	`, item.ID, item.UserID, string(item.Payload)).Scan(&saved.CreatedAt)
	if err != nil {
		return SurveyResponse{}, fmt.Errorf("insert survey response: %w", err)
	}
	return saved, nil
}

// LatestConsent returns the user's most recent consent record or
// sql.ErrNoRows.
func (s *PostgresStore) LatestConsent(ctx context.Context, userID string) (Consent, error) {
	var item Consent
	var metadata []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, accepted, consent_version, survey_version, metadata, created_at, revoked_at
		FROM research_consents
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID).Scan(&item.ID, &item.UserID, &item.Accepted, &item.ConsentVersion, &item.SurveyVersion, &metadata, &item.CreatedAt, &item.RevokedAt)
	if err != nil {
		return Consent{}, err
	}
	item.Metadata = json.RawMessage(metadata)
	return item, nil
}

func (s *PostgresStore) InsertConsent(ctx context.Context, item Consent) (Consent, error) {
	saved := item
	metadata := item.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO research_consents (id, user_id, accepted, consent_version, survey_version, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING created_at
	`, item.ID, item.UserID, item.Accepted, item.ConsentVersion, item.SurveyVersion, string(metadata)).Scan(&saved.CreatedAt)
	if err != nil {
		return Consent{}, fmt.Errorf("insert consent: %w", err)
	}
	saved.Metadata = metadata
	return saved, nil
}

// RevokeConsent marks the user's latest active consent as revoked. It
// reports whether a consent was revoked.
func (s *PostgresStore) RevokeConsent(ctx context.Context, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE research_consents
		SET revoked_at = NOW()
		WHERE id = (
			SELECT id FROM research_consents
			WHERE user_id = $1 AND accepted AND revoked_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, userID)
	if err != nil {
		return false, fmt.Errorf("revoke consent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke consent: %w", err)
	}
	return affected > 0, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
