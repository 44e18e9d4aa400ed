package repository

import "context"

// Tx is an opaque transaction handle. Its concrete type belongs to the
// storage backend (*sql.Tx for SQLite, pgx.Tx for Postgres).
type Tx interface{}

// NoTX selects the non-transactional path.
var NoTX Tx

// TransactionManager runs fn inside one storage transaction and hands the
// handle to repositories through their qx argument. Repositories accept a
// nil qx and then open their own short transaction where one is needed.
//
//	tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
//		if err := sessions.Create(ctx, tx, s); err != nil {
//			return err
//		}
//		return users.SetCurrentChat(ctx, tx, s.UserID, s.ID)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
