package gopg

import (
	"context"

	"github.com/go-pg/pg"
)

// runInTransaction runs fn in a transaction bound to ctx, committed when fn
// returns nil and rolled back otherwise.
func runInTransaction(ctx context.Context, db *pg.DB, fn func(tx *pg.Tx) error) error {
	return db.WithContext(ctx).RunInTransaction(fn)
}
