package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/infra/metrics"
	"odanna-bot/internal/infra/security"
)

var _ repository.MessageRepository = (*MessageRepo)(nil)

// MessageRepo stores the per-chat message log. Text is sealed with enc when
// a key is configured.
type MessageRepo struct {
	s   *Store
	enc *security.EncryptionService
}

func NewMessageRepo(s *Store, enc *security.EncryptionService) *MessageRepo {
	return &MessageRepo{s: s, enc: enc}
}

const messageColumns = `id, chat_id, seq, role, text, ignored, emotion, intent, urgency, tone,
       category, situation, empathy, dedup_key, created_at`

func (r *MessageRepo) Append(ctx context.Context, qx any, m *model.Message, expectedCount int64) error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: role %q", domain.ErrInvalidArgument, m.Role)
	}
	sealed, err := r.enc.Seal(m.Text)
	if err != nil {
		return fmt.Errorf("seal message: %w", err)
	}
	return r.s.inTx(ctx, qx, func(tx *sql.Tx) error {
		var (
			active     int
			count, seq int64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT active, message_count, last_seq FROM chat_sessions WHERE id = ?`, m.ChatID).
			Scan(&active, &count, &seq)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load chat session: %w", err)
		}
		if active != 1 {
			return domain.ErrChatInactive
		}
		if m.FromUser() && count != expectedCount {
			metrics.IncAppendConflict()
			return domain.ErrConflict
		}

		if m.ID == "" {
			m.ID = ulid.Make().String()
		}
		m.Seq = seq + 1
		m.CreatedAt = time.Now().UTC()
		snap := m.Snapshot

		_, err = tx.ExecContext(ctx, `
INSERT INTO messages (`+messageColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ChatID, m.Seq, string(m.Role), sealed, boolInt(m.Ignored),
			string(snap.Emotion), string(snap.Intent), string(snap.Urgency), string(snap.Tone),
			string(snap.Category), snap.Situation, snap.Empathy, m.DedupKey, millis(m.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) && m.DedupKey != "" {
				return domain.ErrDuplicate
			}
			return fmt.Errorf("insert message: %w", err)
		}

		if m.FromUser() {
			_, err = tx.ExecContext(ctx, `
UPDATE chat_sessions
   SET last_seq = ?, message_count = message_count + 1, empathy = ?, updated_at = ?
 WHERE id = ? AND message_count = ?`,
				m.Seq, snap.Empathy, millis(m.CreatedAt), m.ChatID, expectedCount)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE chat_sessions SET last_seq = ?, updated_at = ? WHERE id = ?`,
				m.Seq, millis(m.CreatedAt), m.ChatID)
		}
		if err != nil {
			return fmt.Errorf("advance chat session: %w", err)
		}
		return nil
	})
}

func (r *MessageRepo) Recent(ctx context.Context, qx any, chatID string, limit int, includeIgnored bool) ([]model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ?`
	if !includeIgnored {
		q += ` AND ignored = 0`
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	msgs, err := r.query(ctx, qx, q, chatID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepo) All(ctx context.Context, qx any, chatID string, includeIgnored bool) ([]model.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ?`
	if !includeIgnored {
		q += ` AND ignored = 0`
	}
	q += ` ORDER BY seq`
	return r.query(ctx, qx, q, chatID)
}

func (r *MessageRepo) MarkIgnored(ctx context.Context, qx any, messageID string) error {
	return r.setIgnored(ctx, qx, messageID, true)
}

func (r *MessageRepo) UnmarkIgnored(ctx context.Context, qx any, messageID string) error {
	return r.setIgnored(ctx, qx, messageID, false)
}

func (r *MessageRepo) setIgnored(ctx context.Context, qx any, id string, ignored bool) error {
	q, err := r.s.exec(qx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE messages SET ignored = ? WHERE id = ?`, boolInt(ignored), id)
	if err != nil {
		return fmt.Errorf("set ignored: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) FindByDedupKey(ctx context.Context, qx any, chatID, key string) (*model.Message, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, qx, `SELECT `+messageColumns+` FROM messages WHERE chat_id = ? AND dedup_key = ?`, chatID, key)
}

func (r *MessageRepo) ReplyAfter(ctx context.Context, qx any, chatID string, seq int64) (*model.Message, error) {
	return r.one(ctx, qx, `
SELECT `+messageColumns+` FROM messages
 WHERE chat_id = ? AND seq > ? AND role = 'assistant'
 ORDER BY seq LIMIT 1`, chatID, seq)
}

func (r *MessageRepo) one(ctx context.Context, qx any, q string, args ...any) (*model.Message, error) {
	msgs, err := r.query(ctx, qx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &msgs[0], nil
}

func (r *MessageRepo) query(ctx context.Context, qx any, q string, args ...any) ([]model.Message, error) {
	ex, err := r.s.exec(qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m                              model.Message
			role, text                     string
			emotion, intent, urgency, tone string
			category                       string
			ignored                        int
			created                        int64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Seq, &role, &text, &ignored,
			&emotion, &intent, &urgency, &tone, &category, &m.Snapshot.Situation,
			&m.Snapshot.Empathy, &m.DedupKey, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.Text, err = r.enc.Open(text); err != nil {
			return nil, fmt.Errorf("open message %s: %w", m.ID, err)
		}
		m.Role = model.Role(role)
		m.Ignored = ignored == 1
		m.Snapshot.Emotion = model.Emotion(emotion)
		m.Snapshot.Intent = model.Intent(intent)
		m.Snapshot.Urgency = model.Urgency(urgency)
		m.Snapshot.Tone = model.Tone(tone)
		m.Snapshot.Category = model.Category(category)
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) SaveReceipt(ctx context.Context, qx any, rc *model.Receipt) error {
	if rc.DedupKey == "" {
		return fmt.Errorf("%w: receipt without dedup key", domain.ErrInvalidArgument)
	}
	sealed, err := r.enc.Seal(rc.Reply)
	if err != nil {
		return fmt.Errorf("seal receipt: %w", err)
	}
	q, err := r.s.exec(qx)
	if err != nil {
		return err
	}
	rc.CreatedAt = time.Now().UTC()
	_, err = q.ExecContext(ctx, `
INSERT INTO delivery_receipts (chat_id, dedup_key, kind, reply, created_at)
VALUES (?, ?, ?, ?, ?)`, rc.ChatID, rc.DedupKey, rc.Kind, sealed, millis(rc.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (r *MessageRepo) FindReceipt(ctx context.Context, qx any, chatID, key string) (*model.Receipt, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	q, err := r.s.exec(qx)
	if err != nil {
		return nil, err
	}
	var (
		rc      = model.Receipt{ChatID: chatID, DedupKey: key}
		reply   string
		created int64
	)
	err = q.QueryRowContext(ctx,
		`SELECT kind, reply, created_at FROM delivery_receipts WHERE chat_id = ? AND dedup_key = ?`, chatID, key).
		Scan(&rc.Kind, &reply, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	if rc.Reply, err = r.enc.Open(reply); err != nil {
		return nil, fmt.Errorf("open receipt %s: %w", key, err)
	}
	rc.CreatedAt = fromMillis(created)
	return &rc, nil
}

func isUniqueViolation(err error) bool {
	var e *sqlitedrv.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
