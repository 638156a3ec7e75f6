package newsletter

import (
	"context"
	"sync"
	"time"

	"github.com/interactive-solutions/go-newsletter/internal"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const UserAgent = "InteractiveSolutions/GoNewsletter-1.0"

type Application interface {
	Backend() Backend
	HttpHandler() *HttpHandler

	// Subscribe and Unsubscribe queue the request; the configured backend
	// handles it on a worker, retrying with a constant backoff.
	Subscribe(ctx context.Context, email string, listID int64, lang string, user *int64) error
	Unsubscribe(ctx context.Context, email string, listID int64, user *int64) error

	SendNewsletter(ctx context.Context, id int64) ([]DeliveryResult, error)
	HandleUserEvent(ctx context.Context, event UserEvent) error

	Shutdown(ctx context.Context)
}

type AppOption func(a *application)

func SetBackend(backend Backend) AppOption {
	return func(a *application) {
		a.backend = backend
	}
}

func SetStores(stores Stores) AppOption {
	return func(a *application) {
		a.stores = stores
	}
}

func SetJobRepo(repo JobRepository) AppOption {
	return func(a *application) {
		a.jobRepo = repo
	}
}

func SetRenderer(renderer Renderer) AppOption {
	return func(a *application) {
		a.renderer = renderer
	}
}

func SetAppLogger(logger logrus.FieldLogger) AppOption {
	return func(a *application) {
		a.logger = logger
	}
}

func SetWorkerCount(count int) AppOption {
	return func(a *application) {
		a.workerCount = count
	}
}

// SetRetryPolicy configures how often a failing job is retried and how long
// to wait between attempts.
func SetRetryPolicy(maxRetries uint64, backoff time.Duration) AppOption {
	return func(a *application) {
		a.maxRetries = maxRetries
		a.retryBackoff = backoff
	}
}

func SetPaginateBy(count int) AppOption {
	return func(a *application) {
		a.paginateBy = count
	}
}

func SetDefaultLocale(locale string) AppOption {
	return func(a *application) {
		a.defaultLocale = locale
	}
}

type application struct {
	logger logrus.FieldLogger

	workerCancel context.CancelFunc
	workers      sync.WaitGroup

	workerQueue chan *Job
	workerCount int

	maxRetries   uint64
	retryBackoff time.Duration

	backend  Backend
	events   *UserEventHandler
	stores   Stores
	jobRepo  JobRepository
	renderer Renderer

	validator *internal.Validator

	paginateBy    int
	defaultLocale string
}

func NewApplication(options ...AppOption) (Application, error) {
	app := &application{
		logger: logrus.New(),

		workerQueue: make(chan *Job, 1000),
		workerCount: 1,

		maxRetries:   3,
		retryBackoff: 60 * time.Second,

		paginateBy:    9,
		defaultLocale: "en",
	}

	for _, option := range options {
		option(app)
	}

	if err := app.ensureUsableConfiguration(); err != nil {
		return app, err
	}

	validator, err := internal.NewValidator()
	if err != nil {
		return app, errors.Wrap(err, "failed to build request validator")
	}

	app.validator = validator
	app.events = NewUserEventHandler(app.backend, app.stores.Lists)

	ctx, cancel := context.WithCancel(context.Background())

	app.workerCancel = cancel

	for i := 0; i < app.workerCount; i++ {
		app.workers.Add(1)

		go func() {
			defer app.workers.Done()
			app.worker(ctx)
		}()
	}

	jobs, err := app.jobRepo.GetPending(ctx)
	if err != nil {
		return app, err
	}

	for i := range jobs {
		app.queue(&jobs[i])
	}

	return app, nil
}

func (a *application) Backend() Backend {
	return a.backend
}

func (a *application) HttpHandler() *HttpHandler {
	return &HttpHandler{
		app:       a,
		validator: a.validator,
	}
}

func (a *application) Subscribe(ctx context.Context, email string, listID int64, lang string, user *int64) error {
	if listID == 0 {
		return errors.New("a newsletter list is required to subscribe")
	}

	return a.enqueue(ctx, NewJob(JobSubscribe, email, listID, lang, user))
}

func (a *application) Unsubscribe(ctx context.Context, email string, listID int64, user *int64) error {
	return a.enqueue(ctx, NewJob(JobUnsubscribe, email, listID, "", user))
}

func (a *application) enqueue(ctx context.Context, job *Job) error {
	if job.Email == "" && job.UserID == nil {
		return errors.New("an email or a user is required")
	}

	if err := a.jobRepo.Create(ctx, job); err != nil {
		return err
	}

	a.queue(job)

	return nil
}

func (a *application) SendNewsletter(ctx context.Context, id int64) ([]DeliveryResult, error) {
	n, err := a.stores.Newsletters.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return a.backend.SendMails(ctx, &n)
}

func (a *application) HandleUserEvent(ctx context.Context, event UserEvent) error {
	return a.events.Handle(ctx, event)
}

// Shutdown stops the workers and waits for the jobs in progress until ctx
// is done. Queued jobs stay pending and are reloaded on the next start.
func (a *application) Shutdown(ctx context.Context) {
	a.workerCancel()

	done := make(chan struct{})
	go func() {
		a.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (a *application) ensureUsableConfiguration() error {
	if a.backend == nil {
		return errors.Wrap(ImproperlyConfiguredErr, "missing backend")
	}

	if err := a.stores.validate(); err != nil {
		return err
	}

	if a.jobRepo == nil {
		return errors.Wrap(ImproperlyConfiguredErr, "missing job repository")
	}

	if a.renderer == nil {
		return errors.Wrap(ImproperlyConfiguredErr, "missing renderer")
	}

	if a.workerCount < 1 {
		return errors.Wrap(ImproperlyConfiguredErr, "at least one worker is required")
	}

	return nil
}

func (a *application) queue(job *Job) {
	go func() {
		a.workerQueue <- job
	}()
}

func (a *application) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case job, ok := <-a.workerQueue:
			if !ok {
				return
			}

			err := a.run(ctx, job)
			if err != nil {
				job.LastError = err.Error()

				if !retryable(err) {
					now := time.Now()
					job.FailedAt = &now
				}

				a.logger.
					WithField("job", job.Uuid).
					WithField("type", job.Type).
					WithField("attempts", job.Attempts).
					WithField("failed", job.FailedAt != nil).
					WithError(err).
					Error("failed to process job")
			} else {
				now := time.Now()

				job.ProcessedAt = &now
				job.LastError = ""
			}

			// The job state is saved even when ctx was cancelled mid run.
			if err := a.jobRepo.Update(context.Background(), job); err != nil {
				a.logger.
					WithField("job", job.Uuid).
					WithError(err).
					Error("failed to update job in job repo")
			}
		}
	}
}

// run processes job, retrying failures that may succeed on a later attempt.
func (a *application) run(ctx context.Context, job *Job) error {
	backoff := retry.WithMaxRetries(a.maxRetries, retry.NewConstant(a.retryBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		job.Attempts++

		err := a.events.Handle(ctx, job.event())
		if err == nil || !retryable(err) {
			return err
		}

		a.logger.
			WithField("job", job.Uuid).
			WithField("attempts", job.Attempts).
			WithError(err).
			Warn("job failed, retrying")

		return retry.RetryableError(err)
	})
}

func retryable(err error) bool {
	return !errors.Is(err, ImproperlyConfiguredErr) &&
		!errors.Is(err, InvalidSubscriberErr) &&
		!errors.Is(err, ListNotFoundErr) &&
		!errors.Is(err, RemoteListNotFoundErr)
}
