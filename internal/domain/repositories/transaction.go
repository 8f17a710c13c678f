package repositories

import "context"

// TxFn runs inside a transaction; repositories called with its ctx join it.
type TxFn func(ctx context.Context) error

// TransactionManager runs functions atomically. Used for schema setup and
// seeding; suggestion writes never join a transaction.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
