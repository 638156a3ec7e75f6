package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-pg/pg"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/interactive-solutions/go-newsletter"
	"github.com/interactive-solutions/go-newsletter/config"
	gopg "github.com/interactive-solutions/go-newsletter/storage/go-pg"
	"github.com/interactive-solutions/go-newsletter/storage/memory"
)

const usage = `usage: newsletter [-config file] <command>

commands:
  serve               serve the http api and process queued jobs
  send -id <id>       send a newsletter
  sync-unsubscribed   push local unsubscriptions to the campaign vendor
  migrate             create the database schema
`

var errUsage = errors.New("invalid usage")

func main() {
	logger := logrus.New()

	if err := run(os.Args[1:], os.Getenv("NEWSLETTER_CONFIG"), logger); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}

		logger.WithError(err).Error("newsletter failed")
		os.Exit(1)
	}
}

// run executes the command named by args and releases the database and the
// workers before returning.
func run(args []string, defaultConfig string, logger logrus.FieldLogger) error {
	fs := flag.NewFlagSet("newsletter", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", defaultConfig, "path to the yaml configuration")

	if err := fs.Parse(args); err != nil || fs.NArg() < 1 {
		return errUsage
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	ctx := context.Background()

	var db *pg.DB
	if cfg.Database.URL != "" {
		options, err := pg.ParseURL(cfg.Database.URL)
		if err != nil {
			return errors.Wrap(err, "invalid database url")
		}

		db = pg.Connect(options)
		defer db.Close()
	}

	command, args := fs.Arg(0), fs.Args()[1:]

	if command == "migrate" {
		if db == nil {
			return errors.Wrap(newsletter.ImproperlyConfiguredErr, "migrate requires a database url")
		}

		if err := gopg.CreateSchema(ctx, db); err != nil {
			return errors.Wrap(err, "failed to create schema")
		}

		logger.Info("schema created")
		return nil
	}

	app, err := newApplication(cfg, db, logger)
	if err != nil {
		return errors.Wrap(err, "failed to create application")
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		app.Shutdown(shutdownCtx)
	}()

	switch command {
	case "serve":
		return serve(cfg, app, logger)

	case "send":
		sendFlags := flag.NewFlagSet("send", flag.ContinueOnError)
		sendFlags.SetOutput(io.Discard)
		id := sendFlags.Int64("id", 0, "id of the newsletter to send")

		if err := sendFlags.Parse(args); err != nil {
			return errUsage
		}

		return errors.Wrapf(send(ctx, app, *id, logger), "failed to send newsletter %d", *id)

	case "sync-unsubscribed":
		return errors.Wrap(syncUnsubscribed(ctx, app, logger), "failed to sync unsubscribed contacts")

	default:
		return errUsage
	}
}

func newApplication(cfg *config.Config, db *pg.DB, logger logrus.FieldLogger) (newsletter.Application, error) {
	stores := memory.NewStores()
	jobs := memory.NewJobRepository()

	if db != nil {
		stores = newsletter.Stores{
			Lists:       gopg.NewListRepository(db),
			Newsletters: gopg.NewNewsletterRepository(db),
			Subscribers: gopg.NewSubscriberRepository(db),
		}
		jobs = gopg.NewJobRepository(db)
	}

	renderer, err := cfg.BuildRenderer()
	if err != nil {
		return nil, err
	}

	backend, err := cfg.BuildBackend(stores, renderer, logger)
	if err != nil {
		return nil, err
	}

	return newsletter.NewApplication(
		newsletter.SetBackend(backend),
		newsletter.SetStores(stores),
		newsletter.SetJobRepo(jobs),
		newsletter.SetRenderer(renderer),
		newsletter.SetAppLogger(logger),
		newsletter.SetWorkerCount(cfg.Workers.Count),
		newsletter.SetRetryPolicy(cfg.Workers.MaxRetries, cfg.Workers.Backoff()),
		newsletter.SetPaginateBy(cfg.PaginateBy),
		newsletter.SetDefaultLocale(cfg.DefaultLanguage),
	)
}

func serve(cfg *config.Config, app newsletter.Application, logger logrus.FieldLogger) error {
	router := mux.NewRouter()
	app.HttpHandler().RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	failed := make(chan error, 1)

	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("starting server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return errors.Wrap(err, "server error")
	case <-done:
	}

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}

func send(ctx context.Context, app newsletter.Application, id int64, logger logrus.FieldLogger) error {
	if id == 0 {
		return errors.New("-id is required")
	}

	results, err := app.SendNewsletter(ctx, id)

	for _, result := range results {
		entry := logger.
			WithField("email", result.Email).
			WithField("listId", result.ListID).
			WithField("messageId", result.MessageID)

		if result.Err != nil {
			entry.WithError(result.Err).Warn("delivery failed")
			continue
		}

		entry.Info("delivered")
	}

	return err
}

type unsubscribedSyncer interface {
	SyncUnsubscribed(ctx context.Context) (int, error)
}

func syncUnsubscribed(ctx context.Context, app newsletter.Application, logger logrus.FieldLogger) error {
	syncer, ok := app.Backend().(unsubscribedSyncer)
	if !ok {
		return errors.Wrap(newsletter.ImproperlyConfiguredErr, "the configured backend has no remote contacts to sync")
	}

	count, err := syncer.SyncUnsubscribed(ctx)
	if err != nil {
		return err
	}

	logger.WithField("count", count).Info("unsubscribed contacts synchronised")

	return nil
}
