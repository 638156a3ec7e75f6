package gopg

import (
	"context"
	"time"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
	"github.com/interactive-solutions/go-newsletter"
)

func NewNewsletterRepository(db *pg.DB) newsletter.NewsletterRepository {
	return &newsletterRepository{
		db: db,
	}
}

type newsletterWrapper struct {
	TableName struct{} `sql:"newsletters,alias:n" json:"-"`

	*newsletter.Newsletter
}

type itemWrapper struct {
	TableName struct{} `sql:"newsletter_items,alias:ni" json:"-"`

	*newsletter.NewsletterItem
}

type newsletterRepository struct {
	db *pg.DB
}

func (repo *newsletterRepository) Get(ctx context.Context, id int64) (newsletter.Newsletter, error) {
	db := repo.db.WithContext(ctx)

	wrapped := &newsletterWrapper{
		Newsletter: &newsletter.Newsletter{},
	}

	if err := db.Model(wrapped).Where("n.id = ?", id).Select(); err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.Newsletter, newsletter.NewsletterNotFoundErr
		}

		return *wrapped.Newsletter, err
	}

	var items []itemWrapper

	err := db.Model(&items).
		Where("ni.newsletter_id = ?", id).
		Order("ni.position ASC", "ni.id ASC").
		Select()
	if err != nil && err != pg.ErrNoRows {
		return *wrapped.Newsletter, err
	}

	wrapped.Items = make([]newsletter.NewsletterItem, 0, len(items))
	for _, item := range items {
		wrapped.Items = append(wrapped.Items, *item.NewsletterItem)
	}

	return *wrapped.Newsletter, nil
}

// published restricts q to the online issues published before now, of
// listID unless it is zero.
func published(q *orm.Query, listID int64, now time.Time) *orm.Query {
	if listID != 0 {
		q.Where("n.newsletter_list_id = ?", listID)
	}

	return q.
		Where("n.status = ?", newsletter.StatusOnline).
		Where("n.published_at IS NOT NULL").
		Where("n.published_at < ?", now)
}

func (repo *newsletterRepository) Matching(ctx context.Context, criteria newsletter.NewsletterCriteria) ([]newsletter.Newsletter, int, error) {
	var wrapped []newsletterWrapper
	newsletters := make([]newsletter.Newsletter, 0)

	builder := repo.db.WithContext(ctx).Model(&wrapped).
		Offset(criteria.Offset).
		Limit(criteria.Limit)

	if criteria.Published {
		published(builder, criteria.NewsletterListID, criteria.PublishedBefore)
	} else if criteria.NewsletterListID != 0 {
		builder.Where("n.newsletter_list_id = ?", criteria.NewsletterListID)
	}

	if criteria.Lang != "" {
		builder.Where("(n.languages IS NULL OR n.languages = '{}' OR LOWER(?) IN (SELECT LOWER(l) FROM unnest(n.languages) AS l))", criteria.Lang)
	}

	builder.Order("n.published_at DESC NULLS LAST", "n.id DESC")

	count, err := builder.SelectAndCount()
	if err != nil && err != pg.ErrNoRows {
		return newsletters, 0, err
	}

	for _, n := range wrapped {
		newsletters = append(newsletters, *n.Newsletter)
	}

	return newsletters, count, nil
}

func (repo *newsletterRepository) Previous(ctx context.Context, n newsletter.Newsletter, now time.Time) (newsletter.Newsletter, error) {
	return repo.neighbour(ctx, n, now, "<", "DESC")
}

func (repo *newsletterRepository) Next(ctx context.Context, n newsletter.Newsletter, now time.Time) (newsletter.Newsletter, error) {
	return repo.neighbour(ctx, n, now, ">", "ASC")
}

// neighbour returns the closest published issue of the same list in the
// direction given by op, ties on the publication date broken by id.
func (repo *newsletterRepository) neighbour(ctx context.Context, n newsletter.Newsletter, now time.Time, op, dir string) (newsletter.Newsletter, error) {
	wrapped := &newsletterWrapper{
		Newsletter: &newsletter.Newsletter{},
	}

	if n.PublishedAt == nil {
		return *wrapped.Newsletter, newsletter.NewsletterNotFoundErr
	}

	q := repo.db.WithContext(ctx).Model(wrapped)

	err := published(q, n.NewsletterListID, now).
		Where("(n.published_at "+op+" ?0 OR (n.published_at = ?0 AND n.id "+op+" ?1))", *n.PublishedAt, n.ID).
		Order("n.published_at "+dir, "n.id "+dir).
		Limit(1).
		Select()
	if err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.Newsletter, newsletter.NewsletterNotFoundErr
		}

		return *wrapped.Newsletter, err
	}

	return *wrapped.Newsletter, nil
}

func (repo *newsletterRepository) Create(ctx context.Context, n *newsletter.Newsletter) error {
	return repo.db.WithContext(ctx).Insert(&newsletterWrapper{Newsletter: n})
}

// Update writes every column but sent, which only MarkSent changes.
func (repo *newsletterRepository) Update(ctx context.Context, n *newsletter.Newsletter) error {
	res, err := repo.db.WithContext(ctx).Model(&newsletterWrapper{Newsletter: n}).
		Column("name", "headline", "conclusion", "cover", "published_at", "status", "newsletter_list_id", "languages").
		WherePK().
		Update()
	if err != nil {
		return err
	}

	if res.RowsAffected() == 0 {
		return newsletter.NewsletterNotFoundErr
	}

	return nil
}

func (repo *newsletterRepository) AddItem(ctx context.Context, item *newsletter.NewsletterItem) error {
	return repo.db.WithContext(ctx).Insert(&itemWrapper{NewsletterItem: item})
}

func (repo *newsletterRepository) MarkSent(ctx context.Context, n *newsletter.Newsletter) error {
	_, err := repo.db.WithContext(ctx).Model(&newsletterWrapper{Newsletter: n}).
		Set("sent = TRUE").
		Where("n.id = ?", n.ID).
		Update()

	return err
}
