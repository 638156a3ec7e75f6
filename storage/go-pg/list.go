package gopg

import (
	"context"

	"github.com/go-pg/pg"
	"github.com/interactive-solutions/go-newsletter"
)

func NewListRepository(db *pg.DB) newsletter.ListRepository {
	return &listRepository{
		db: db,
	}
}

type listWrapper struct {
	TableName struct{} `sql:"newsletter_lists,alias:nl" json:"-"`

	*newsletter.NewsletterList
}

type listRepository struct {
	db *pg.DB
}

func (repo *listRepository) Get(ctx context.Context, id int64) (newsletter.NewsletterList, error) {
	return repo.get(ctx, "nl.id = ?", id)
}

func (repo *listRepository) GetBySlug(ctx context.Context, slug string) (newsletter.NewsletterList, error) {
	return repo.get(ctx, "nl.slug = ?", slug)
}

func (repo *listRepository) get(ctx context.Context, condition string, param interface{}) (newsletter.NewsletterList, error) {
	wrapped := &listWrapper{
		NewsletterList: &newsletter.NewsletterList{},
	}

	if err := repo.db.WithContext(ctx).Model(wrapped).Where(condition, param).Select(); err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.NewsletterList, newsletter.ListNotFoundErr
		}

		return *wrapped.NewsletterList, err
	}

	return *wrapped.NewsletterList, nil
}

func (repo *listRepository) All(ctx context.Context) ([]newsletter.NewsletterList, error) {
	var wrapped []listWrapper
	lists := make([]newsletter.NewsletterList, 0)

	if err := repo.db.WithContext(ctx).Model(&wrapped).Order("nl.name ASC").Select(); err != nil && err != pg.ErrNoRows {
		return lists, err
	}

	for _, l := range wrapped {
		lists = append(lists, *l.NewsletterList)
	}

	return lists, nil
}

func (repo *listRepository) Create(ctx context.Context, list *newsletter.NewsletterList) error {
	return repo.db.WithContext(ctx).Insert(&listWrapper{NewsletterList: list})
}

func (repo *listRepository) Update(ctx context.Context, list *newsletter.NewsletterList) error {
	return repo.db.WithContext(ctx).Update(&listWrapper{NewsletterList: list})
}
