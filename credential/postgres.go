package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for a unique constraint
// breach; it maps duplicate email/username inserts to ErrDuplicate.
const uniqueViolation = "23505"

// Postgres is a pgx-backed Store over the platform's users table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Store backed by the given connection pool. The
// pool's lifecycle belongs to the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const selectColumns = `id, email, username, password_hash, is_active, is_verified, is_premium, level, xp, created_at`

func (p *Postgres) GetByID(ctx context.Context, id string) (*Record, error) {
	return p.getBy(ctx, "id", id)
}

func (p *Postgres) GetByEmail(ctx context.Context, email string) (*Record, error) {
	return p.getBy(ctx, "email", normalize(email))
}

func (p *Postgres) GetByUsername(ctx context.Context, username string) (*Record, error) {
	return p.getBy(ctx, "username", normalize(username))
}

func (p *Postgres) getBy(ctx context.Context, column, value string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s = $1", selectColumns, column)

	var rec Record
	err := p.pool.QueryRow(ctx, query, value).Scan(
		&rec.ID, &rec.Email, &rec.Username, &rec.PasswordHash,
		&rec.IsActive, &rec.IsVerified, &rec.IsPremium,
		&rec.Level, &rec.XP, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (p *Postgres) Create(ctx context.Context, rec *Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, is_active, is_verified, is_premium, level, xp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, normalize(rec.Email), normalize(rec.Username), rec.PasswordHash,
		rec.IsActive, rec.IsVerified, rec.IsPremium, rec.Level, rec.XP, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (p *Postgres) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkVerified(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET is_verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
