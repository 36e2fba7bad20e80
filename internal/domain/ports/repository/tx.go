package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a storage transaction and hands the
// backend-specific handle to repositories through tx.
//
// Repositories MUST accept a nil tx (non-transactional path). Backends with no
// transactions (memory, redis) ignore it.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
