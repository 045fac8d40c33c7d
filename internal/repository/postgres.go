package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tunehub/backend/internal/domain"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresRepository stores profiles, the catalog and the social graph.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// UpsertUser creates a user or updates its profile fields, keeping created_at.
func (r *PostgresRepository) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, handle, email, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE
		SET handle = EXCLUDED.handle,
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			updated_at = EXCLUDED.updated_at
		RETURNING id, handle, email, display_name, created_at, updated_at
	`
	row := r.db.QueryRow(ctx, query, u.ID, u.Handle, u.Email, u.DisplayName, u.UpdatedAt)
	user, err := scanUser(row)
	if isUniqueViolation(err) {
		return nil, domain.ErrConflict
	}
	return user, err
}

// GetUserByID retrieves a user by ID
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, handle, email, display_name, created_at, updated_at
		FROM users WHERE id = $1
	`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetUserByHandle retrieves a user by handle, ignoring case
func (r *PostgresRepository) GetUserByHandle(ctx context.Context, handle string) (*domain.User, error) {
	query := `
		SELECT id, handle, email, display_name, created_at, updated_at
		FROM users WHERE lower(handle) = lower($1)
	`
	return scanUser(r.db.QueryRow(ctx, query, handle))
}

func (r *PostgresRepository) UpsertRelease(ctx context.Context, rel *domain.Release) error {
	query := `
		INSERT INTO releases (id, kind, title, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind, title = EXCLUDED.title, owner_id = EXCLUDED.owner_id
	`
	_, err := r.db.Exec(ctx, query, rel.ID, string(rel.Kind), rel.Title, rel.OwnerID, rel.CreatedAt)
	return err
}

func (r *PostgresRepository) GetRelease(ctx context.Context, id string) (*domain.Release, error) {
	query := `SELECT id, kind, title, owner_id, created_at FROM releases WHERE id = $1`

	var rel domain.Release
	var kind string
	err := r.db.QueryRow(ctx, query, id).Scan(&rel.ID, &kind, &rel.Title, &rel.OwnerID, &rel.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rel.Kind = domain.ReleaseKind(kind)
	return &rel, nil
}

func (r *PostgresRepository) CreateFollow(ctx context.Context, f *domain.Follow) error {
	query := `INSERT INTO follows (follower_id, followee_id, created_at) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, f.FollowerID, f.FolloweeID, f.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

// ListFollowers returns the ids of everyone following userID
func (r *PostgresRepository) ListFollowers(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT follower_id FROM follows WHERE followee_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PostgresRepository) CreateFavorite(ctx context.Context, f *domain.Favorite) error {
	query := `INSERT INTO favorites (user_id, release_id, created_at) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, f.UserID, f.ReleaseID, f.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *PostgresRepository) CreateComment(ctx context.Context, c *domain.Comment) error {
	query := `
		INSERT INTO comments (id, song_id, author_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.SongID, c.AuthorID, c.Text, c.CreatedAt)
	return err
}

// SaveDeviceToken registers an FCM token for a user, moving it if another
// user held it before.
func (r *PostgresRepository) SaveDeviceToken(ctx context.Context, userID, token string) error {
	query := `
		INSERT INTO device_tokens (token, user_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, token, userID)
	return err
}

// GetDeviceTokens returns all FCM tokens for a user
func (r *PostgresRepository) GetDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT token FROM device_tokens WHERE user_id = $1`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// DeleteStaleDeviceTokens removes tokens that were not refreshed since cutoff.
func (r *PostgresRepository) DeleteStaleDeviceTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM device_tokens WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Helper functions for scanning rows

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	var email, displayName *string
	err := row.Scan(
		&user.ID,
		&user.Handle,
		&email,
		&displayName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if email != nil {
		user.Email = *email
	}
	if displayName != nil {
		user.DisplayName = *displayName
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
