package gopg

import (
	"context"

	"github.com/go-pg/pg"
	"github.com/interactive-solutions/go-newsletter"
)

func NewJobRepository(db *pg.DB) newsletter.JobRepository {
	return &jobRepository{
		db: db,
	}
}

type jobWrapper struct {
	TableName struct{} `sql:"newsletter_jobs,alias:nj" json:"-"`

	*newsletter.Job
}

type jobRepository struct {
	db *pg.DB
}

func (repo *jobRepository) Create(ctx context.Context, job *newsletter.Job) error {
	return repo.db.WithContext(ctx).Insert(&jobWrapper{Job: job})
}

func (repo *jobRepository) Update(ctx context.Context, job *newsletter.Job) error {
	return repo.db.WithContext(ctx).Update(&jobWrapper{Job: job})
}

// GetPending returns the jobs neither processed nor failed for good, oldest first.
func (repo *jobRepository) GetPending(ctx context.Context) ([]newsletter.Job, error) {
	var jobs []newsletter.Job
	var wrappedJobs []jobWrapper

	err := repo.db.WithContext(ctx).Model(&wrappedJobs).
		Where("nj.processed_at IS NULL").
		Where("nj.failed_at IS NULL").
		Order("nj.created_at ASC").
		Select()
	if err != nil {
		if err == pg.ErrNoRows {
			return jobs, nil
		}

		return jobs, err
	}

	for _, j := range wrappedJobs {
		jobs = append(jobs, *j.Job)
	}

	return jobs, nil
}
