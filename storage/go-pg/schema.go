package gopg

import (
	"context"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
	"github.com/pkg/errors"
)

var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS newsletter_subscribers_email_list_lang_idx
		ON newsletter_subscribers (email, newsletter_list_id, LOWER(lang))`,
	`CREATE INDEX IF NOT EXISTS newsletters_list_published_idx
		ON newsletters (newsletter_list_id, published_at)`,
	`CREATE INDEX IF NOT EXISTS newsletter_items_newsletter_idx
		ON newsletter_items (newsletter_id, position)`,
	`CREATE INDEX IF NOT EXISTS newsletter_jobs_pending_idx
		ON newsletter_jobs (created_at) WHERE processed_at IS NULL AND failed_at IS NULL`,
}

// CreateSchema creates the tables and indexes of every repository of this
// package. Existing tables are left untouched.
func CreateSchema(ctx context.Context, db *pg.DB) error {
	return runInTransaction(ctx, db, func(tx *pg.Tx) error {
		models := []interface{}{
			(*listWrapper)(nil),
			(*newsletterWrapper)(nil),
			(*itemWrapper)(nil),
			(*subscriberWrapper)(nil),
			(*jobWrapper)(nil),
		}

		for _, model := range models {
			if err := tx.CreateTable(model, &orm.CreateTableOptions{IfNotExists: true}); err != nil {
				return errors.Wrapf(err, "failed to create table for %T", model)
			}
		}

		for _, index := range indexes {
			if _, err := tx.Exec(index); err != nil {
				return errors.Wrap(err, "failed to create index")
			}
		}

		return nil
	})
}
