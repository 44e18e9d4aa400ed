package sqlite

import (
	"context"
	"fmt"

	"odanna-bot/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager hands a *sql.Tx to the callback via the qx argument of the
// repositories. With one pooled connection, repositories called inside fn
// must receive tx; a nil qx would wait for the connection fn holds.
type TxManager struct {
	s *Store
}

func NewTxManager(s *Store) *TxManager { return &TxManager{s: s} }

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
