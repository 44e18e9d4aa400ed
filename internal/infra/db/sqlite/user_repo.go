package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	s *Store
}

func NewUserRepo(s *Store) *UserRepo { return &UserRepo{s: s} }

func (r *UserRepo) Upsert(ctx context.Context, qx any, u *model.User) error {
	q, err := r.s.exec(qx)
	if err != nil {
		return err
	}
	if u.Gender == "" {
		u.Gender = model.GenderUnknown
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.LastActiveAt = now
	_, err = q.ExecContext(ctx, `
INSERT INTO users (id, username, first_name, gender, current_chat_id, created_at, last_active_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  username = excluded.username,
  first_name = excluded.first_name,
  last_active_at = excluded.last_active_at`,
		u.ID, u.Username, u.FirstName, string(u.Gender), u.CurrentChatID, millis(u.CreatedAt), millis(u.LastActiveAt))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, qx any, id int64) (*model.User, error) {
	q, err := r.s.exec(qx)
	if err != nil {
		return nil, err
	}
	var (
		u              model.User
		gender         string
		created, lastA int64
	)
	err = q.QueryRowContext(ctx, `
SELECT id, username, first_name, gender, current_chat_id, created_at, last_active_at
  FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.FirstName, &gender, &u.CurrentChatID, &created, &lastA)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Gender = model.ParseGender(gender)
	u.CreatedAt = fromMillis(created)
	u.LastActiveAt = fromMillis(lastA)
	return &u, nil
}

func (r *UserRepo) SetCurrentChat(ctx context.Context, qx any, userID int64, chatID string) error {
	return r.update(ctx, qx, `UPDATE users SET current_chat_id = ? WHERE id = ?`, chatID, userID)
}

func (r *UserRepo) SetGender(ctx context.Context, qx any, userID int64, g model.Gender) error {
	return r.update(ctx, qx, `UPDATE users SET gender = ? WHERE id = ?`, string(g), userID)
}

func (r *UserRepo) update(ctx context.Context, qx any, stmt string, args ...any) error {
	q, err := r.s.exec(qx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
