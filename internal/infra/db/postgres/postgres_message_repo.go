package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/infra/metrics"
	"odanna-bot/internal/infra/security"
)

var _ repository.MessageRepository = (*MessageRepo)(nil)

// MessageRepo persists the per-chat message log with optional encryption-at-rest.
type MessageRepo struct {
	pool          *pgxpool.Pool
	encryptionSvc *security.EncryptionService
}

func NewPostgresMessageRepo(pool *pgxpool.Pool, encryptionSvc *security.EncryptionService) *MessageRepo {
	return &MessageRepo{pool: pool, encryptionSvc: encryptionSvc}
}

const messageColumns = `id, chat_id, seq, role, text, ignored, emotion, intent, urgency, tone,
       category, situation, empathy, dedup_key, created_at`

// Append locks the chat row, then verifies message_count again on update, so
// two writers racing on one chat cannot both advance it.
func (r *MessageRepo) Append(ctx context.Context, qx any, m *model.Message, expectedCount int64) error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: role %q", domain.ErrInvalidArgument, m.Role)
	}
	payload, err := r.encryptionSvc.Seal(m.Text)
	if err != nil {
		return fmt.Errorf("encrypt msg: %w", err)
	}

	return inTx(ctx, r.pool, qx, func(tx pgx.Tx) error {
		var (
			active     bool
			count, seq int64
		)
		err := tx.QueryRow(ctx, `SELECT active, message_count, last_seq FROM chat_sessions WHERE id=$1 FOR UPDATE;`, m.ChatID).
			Scan(&active, &count, &seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if !active {
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

		const qi = `
INSERT INTO messages (` + messageColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`
		_, err = tx.Exec(ctx, qi, m.ID, m.ChatID, m.Seq, string(m.Role), payload, m.Ignored,
			string(snap.Emotion), string(snap.Intent), string(snap.Urgency), string(snap.Tone),
			string(snap.Category), snap.Situation, snap.Empathy, m.DedupKey, m.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) && m.DedupKey != "" {
				return domain.ErrDuplicate
			}
			return fmt.Errorf("insert message: %w", err)
		}

		if !m.FromUser() {
			_, err = tx.Exec(ctx, `UPDATE chat_sessions SET last_seq=$2, updated_at=$3 WHERE id=$1;`, m.ChatID, m.Seq, m.CreatedAt)
			return err
		}
		tag, err := tx.Exec(ctx, `
UPDATE chat_sessions
   SET last_seq=$2, message_count=message_count+1, empathy=$3, updated_at=$4
 WHERE id=$1 AND message_count=$5;`, m.ChatID, m.Seq, snap.Empathy, m.CreatedAt, expectedCount)
		if err != nil {
			return fmt.Errorf("advance session: %w", err)
		}
		if tag.RowsAffected() != 1 {
			metrics.IncAppendConflict()
			return domain.ErrConflict
		}
		return nil
	})
}

func (r *MessageRepo) Recent(ctx context.Context, qx any, chatID string, limit int, includeIgnored bool) ([]model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `SELECT * FROM (SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1`
	if !includeIgnored {
		q += ` AND NOT ignored`
	}
	q += ` ORDER BY seq DESC LIMIT $2) w ORDER BY seq ASC;`
	return r.query(ctx, qx, q, chatID, limit)
}

func (r *MessageRepo) All(ctx context.Context, qx any, chatID string, includeIgnored bool) ([]model.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1`
	if !includeIgnored {
		q += ` AND NOT ignored`
	}
	q += ` ORDER BY seq ASC;`
	return r.query(ctx, qx, q, chatID)
}

func (r *MessageRepo) MarkIgnored(ctx context.Context, qx any, messageID string) error {
	return execOne(ctx, r.pool, qx, `UPDATE messages SET ignored=TRUE WHERE id=$1;`, messageID)
}

func (r *MessageRepo) UnmarkIgnored(ctx context.Context, qx any, messageID string) error {
	return execOne(ctx, r.pool, qx, `UPDATE messages SET ignored=FALSE WHERE id=$1;`, messageID)
}

func (r *MessageRepo) FindByDedupKey(ctx context.Context, qx any, chatID, key string) (*model.Message, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, qx, `SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 AND dedup_key=$2;`, chatID, key)
}

func (r *MessageRepo) ReplyAfter(ctx context.Context, qx any, chatID string, seq int64) (*model.Message, error) {
	const q = `
SELECT ` + messageColumns + ` FROM messages
 WHERE chat_id=$1 AND seq>$2 AND role='assistant'
 ORDER BY seq ASC LIMIT 1;`
	return r.one(ctx, qx, q, chatID, seq)
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
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m                                        model.Message
			role, text                               string
			emotion, intent, urgency, tone, category string
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Seq, &role, &text, &m.Ignored,
			&emotion, &intent, &urgency, &tone, &category, &m.Snapshot.Situation,
			&m.Snapshot.Empathy, &m.DedupKey, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan msg: %w", err)
		}
		if m.Text, err = r.encryptionSvc.Open(text); err != nil {
			return nil, fmt.Errorf("decrypt msg: %w", err)
		}
		m.Role = model.Role(role)
		m.Snapshot.Emotion = model.Emotion(emotion)
		m.Snapshot.Intent = model.Intent(intent)
		m.Snapshot.Urgency = model.Urgency(urgency)
		m.Snapshot.Tone = model.Tone(tone)
		m.Snapshot.Category = model.Category(category)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *MessageRepo) SaveReceipt(ctx context.Context, qx any, rc *model.Receipt) error {
	if rc.DedupKey == "" {
		return fmt.Errorf("%w: receipt without dedup key", domain.ErrInvalidArgument)
	}
	payload, err := r.encryptionSvc.Seal(rc.Reply)
	if err != nil {
		return fmt.Errorf("encrypt receipt: %w", err)
	}
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	rc.CreatedAt = time.Now().UTC()
	const q = `
INSERT INTO delivery_receipts (chat_id, dedup_key, kind, reply, created_at)
VALUES ($1,$2,$3,$4,$5);`
	if _, err := ex.Exec(ctx, q, rc.ChatID, rc.DedupKey, rc.Kind, payload, rc.CreatedAt); err != nil {
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
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rc := model.Receipt{ChatID: chatID, DedupKey: key}
	var payload string
	err = ex.QueryRow(ctx, `SELECT kind, reply, created_at FROM delivery_receipts WHERE chat_id=$1 AND dedup_key=$2;`, chatID, key).
		Scan(&rc.Kind, &payload, &rc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select receipt: %w", err)
	}
	if rc.Reply, err = r.encryptionSvc.Open(payload); err != nil {
		return nil, fmt.Errorf("decrypt receipt: %w", err)
	}
	return &rc, nil
}
