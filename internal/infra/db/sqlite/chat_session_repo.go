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

var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

type ChatSessionRepo struct {
	s *Store
}

func NewChatSessionRepo(s *Store) *ChatSessionRepo { return &ChatSessionRepo{s: s} }

const sessionColumns = `id, user_id, title, scenario, empathy, empathy_override, message_count,
       last_seq, summary, active, created_at, updated_at`

func (r *ChatSessionRepo) Create(ctx context.Context, qx any, cs *model.ChatSession) error {
	q, err := r.s.exec(qx)
	if err != nil {
		return err
	}
	var override sql.NullInt64
	if cs.EmpathyOverride != nil {
		override = sql.NullInt64{Int64: int64(*cs.EmpathyOverride), Valid: true}
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO chat_sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.ID, cs.UserID, cs.Title, cs.Scenario, cs.Empathy, override, cs.MessageCount,
		cs.LastSeq, cs.Summary, boolInt(cs.Active), millis(cs.CreatedAt), millis(cs.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create chat session: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	q, err := r.s.exec(qx)
	if err != nil {
		return nil, err
	}
	cs, err := scanSession(q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find chat session: %w", err)
	}
	return cs, nil
}

func (r *ChatSessionRepo) Rename(ctx context.Context, qx any, id, title string) error {
	return r.update(ctx, qx, `UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ? AND active = 1`,
		title, millis(time.Now()), id)
}

// SoftDelete flags the session inactive; its messages stay.
func (r *ChatSessionRepo) SoftDelete(ctx context.Context, qx any, id string) error {
	return r.update(ctx, qx, `UPDATE chat_sessions SET active = 0, updated_at = ? WHERE id = ? AND active = 1`,
		millis(time.Now()), id)
}

func (r *ChatSessionRepo) ListByUser(ctx context.Context, qx any, userID int64) ([]*model.ChatSession, error) {
	q, err := r.s.exec(qx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
SELECT `+sessionColumns+`
  FROM chat_sessions
 WHERE user_id = ? AND active = 1
 ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.ChatSession
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (r *ChatSessionRepo) SetEmpathyOverride(ctx context.Context, qx any, id string, level *int) error {
	var v sql.NullInt64
	if level != nil {
		v = sql.NullInt64{Int64: int64(*level), Valid: true}
	}
	return r.update(ctx, qx, `UPDATE chat_sessions SET empathy_override = ?, updated_at = ? WHERE id = ? AND active = 1`,
		v, millis(time.Now()), id)
}

func (r *ChatSessionRepo) SetSummary(ctx context.Context, qx any, id, summary string) error {
	return r.update(ctx, qx, `UPDATE chat_sessions SET summary = ? WHERE id = ?`, summary, id)
}

// update reports domain.ErrNotFound when no row matched, including the case
// of an inactive session for statements guarded by active = 1.
func (r *ChatSessionRepo) update(ctx context.Context, qx any, stmt string, args ...any) error {
	q, err := r.s.exec(qx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update chat session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.ChatSession, error) {
	var (
		cs               model.ChatSession
		override         sql.NullInt64
		active           int
		created, updated int64
	)
	if err := row.Scan(&cs.ID, &cs.UserID, &cs.Title, &cs.Scenario, &cs.Empathy, &override,
		&cs.MessageCount, &cs.LastSeq, &cs.Summary, &active, &created, &updated); err != nil {
		return nil, err
	}
	if override.Valid {
		v := int(override.Int64)
		cs.EmpathyOverride = &v
	}
	cs.Active = active == 1
	cs.CreatedAt = fromMillis(created)
	cs.UpdatedAt = fromMillis(updated)
	return &cs, nil
}
