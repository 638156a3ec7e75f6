package newsletter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var JobNotFoundErr = errors.New("The job was not found")

type JobType uint

const (
	JobSubscribe JobType = iota
	JobUnsubscribe
)

func (t JobType) String() string {
	switch t {
	case JobSubscribe:
		return "subscribe"
	case JobUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// Job is a queued subscribe or unsubscribe request.
type Job struct {
	Uuid uuid.UUID `sql:",pk" json:"uuid"`
	Type JobType   `sql:",notnull" json:"type"`

	Email string `sql:",notnull" json:"email"`
	Lang  string `sql:",notnull" json:"lang"`

	// NewsletterListID zero targets every list, unsubscribe only.
	NewsletterListID int64  `sql:",notnull" json:"newsletterListId"`
	UserID           *int64 `json:"userId,omitempty"`

	Attempts  int    `sql:",notnull" json:"attempts"`
	LastError string `json:"lastError,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt"`

	// FailedAt is set once the job failed with an error no retry can fix.
	FailedAt *time.Time `json:"failedAt,omitempty"`
}

// Pending reports whether job still has to be run.
func (j Job) Pending() bool {
	return j.ProcessedAt == nil && j.FailedAt == nil
}

func NewJob(jobType JobType, email string, listID int64, lang string, user *int64) *Job {
	return &Job{
		Uuid:             uuid.New(),
		Type:             jobType,
		Email:            NormalizeEmail(email),
		Lang:             lang,
		NewsletterListID: listID,
		UserID:           user,
		CreatedAt:        time.Now(),
	}
}

type JobRepository interface {
	GetPending(ctx context.Context) ([]Job, error)

	Create(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
}
