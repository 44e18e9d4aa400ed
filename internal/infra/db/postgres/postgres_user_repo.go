package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Upsert(ctx context.Context, qx any, u *model.User) error {
	const q = `
INSERT INTO users (id, username, first_name, gender, current_chat_id, created_at, last_active_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  username=EXCLUDED.username, first_name=EXCLUDED.first_name, last_active_at=EXCLUDED.last_active_at;`
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if u.Gender == "" {
		u.Gender = model.GenderUnknown
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.LastActiveAt = now
	if _, err := ex.Exec(ctx, q, u.ID, u.Username, u.FirstName, string(u.Gender), u.CurrentChatID, u.CreatedAt, u.LastActiveAt); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, qx any, id int64) (*model.User, error) {
	const q = `
SELECT id, username, first_name, gender, current_chat_id, created_at, last_active_at
  FROM users WHERE id=$1;`
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	var (
		u      model.User
		gender string
	)
	if err := ex.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.FirstName, &gender, &u.CurrentChatID, &u.CreatedAt, &u.LastActiveAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Gender = model.ParseGender(gender)
	return &u, nil
}

func (r *PostgresUserRepo) SetCurrentChat(ctx context.Context, qx any, userID int64, chatID string) error {
	return execOne(ctx, r.pool, qx, `UPDATE users SET current_chat_id=$2 WHERE id=$1;`, userID, chatID)
}

func (r *PostgresUserRepo) SetGender(ctx context.Context, qx any, userID int64, g model.Gender) error {
	return execOne(ctx, r.pool, qx, `UPDATE users SET gender=$2 WHERE id=$1;`, userID, string(g))
}

// execOne runs a single-row update and maps zero affected rows to ErrNotFound.
func execOne(ctx context.Context, pool *pgxpool.Pool, qx any, q string, args ...any) error {
	ex, err := getExecutor(pool, qx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
