// File: internal/infra/db/postgres/postgres_chat_session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/repository"
)

var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

type ChatSessionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresChatSessionRepo(pool *pgxpool.Pool) *ChatSessionRepo {
	return &ChatSessionRepo{pool: pool}
}

const sessionColumns = `id, user_id, title, scenario, empathy, empathy_override, message_count,
       last_seq, summary, active, created_at, updated_at`

func (r *ChatSessionRepo) Create(ctx context.Context, qx any, s *model.ChatSession) error {
	const q = `
INSERT INTO chat_sessions (` + sessionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, q, s.ID, s.UserID, s.Title, s.Scenario, s.Empathy, s.EmpathyOverride,
		s.MessageCount, s.LastSeq, s.Summary, s.Active, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	s, err := scanSession(ex.QueryRow(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id=$1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func (r *ChatSessionRepo) Rename(ctx context.Context, qx any, id, title string) error {
	return execOne(ctx, r.pool, qx, `UPDATE chat_sessions SET title=$2, updated_at=NOW() WHERE id=$1 AND active;`, id, title)
}

func (r *ChatSessionRepo) SoftDelete(ctx context.Context, qx any, id string) error {
	return execOne(ctx, r.pool, qx, `UPDATE chat_sessions SET active=FALSE, updated_at=NOW() WHERE id=$1 AND active;`, id)
}

func (r *ChatSessionRepo) ListByUser(ctx context.Context, qx any, userID int64) ([]*model.ChatSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE user_id=$1 AND active ORDER BY created_at DESC;`
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*model.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) SetEmpathyOverride(ctx context.Context, qx any, id string, level *int) error {
	return execOne(ctx, r.pool, qx, `UPDATE chat_sessions SET empathy_override=$2, updated_at=NOW() WHERE id=$1 AND active;`, id, level)
}

func (r *ChatSessionRepo) SetSummary(ctx context.Context, qx any, id, summary string) error {
	return execOne(ctx, r.pool, qx, `UPDATE chat_sessions SET summary=$2 WHERE id=$1;`, id, summary)
}

func scanSession(row pgx.Row) (*model.ChatSession, error) {
	var (
		s        model.ChatSession
		override *int32
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Scenario, &s.Empathy, &override,
		&s.MessageCount, &s.LastSeq, &s.Summary, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if override != nil {
		v := int(*override)
		s.EmpathyOverride = &v
	}
	return &s, nil
}
