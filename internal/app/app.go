package app

import (
	"context"

	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"

	"github.com/binhmuc/autobot-review/internal/agent"
	"github.com/binhmuc/autobot-review/internal/config"
	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
	"github.com/binhmuc/autobot-review/internal/provider"
	"github.com/binhmuc/autobot-review/internal/queue"
	"github.com/binhmuc/autobot-review/internal/reviewer"
	"github.com/binhmuc/autobot-review/internal/server"
	"github.com/binhmuc/autobot-review/internal/storage"
	"github.com/binhmuc/autobot-review/internal/webhook"
)

// App wires the review pipeline: the webhook server feeds the queue, the
// consumer drives the reviewer, everything shares one storage and one forge
// client.
type App struct {
	forge    interfaces.ForgeClient
	agent    *agent.Agent
	storage  *storage.Storage
	queue    *queue.Queue
	consumer *queue.Consumer
	reviewer *reviewer.Reviewer
	intake   *webhook.Service
	server   *server.Server

	cfg config.Config
	log logze.Logger
}

// LoadConfig reads configuration for the whole pipeline.
func LoadConfig(path string) (config.Config, error) {
	return config.Load(path)
}

// New creates the service and registers every component's shutdown.
func New(ctx contem.Context, cfg config.Config) (*App, error) {
	app := &App{
		cfg: cfg,
		log: logze.With("component", "app"),
	}

	if err := app.init(ctx, cfg); err != nil {
		return nil, errm.Wrap(err, "failed to initialize service")
	}

	return app, nil
}

// Start brings up the queue consumer and the webhook server.
func (a *App) Start(ctx context.Context) error {
	a.consumer.Start(ctx)
	if err := a.server.Start(ctx); err != nil {
		return errm.Wrap(err, "failed to start webhook server")
	}
	return nil
}

func (a *App) init(ctx contem.Context, cfg config.Config) (err error) {
	a.storage, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		return errm.Wrap(err, "failed to create storage")
	}
	ctx.Add(func(context.Context) error { return a.storage.Close() })

	a.queue, err = queue.New(ctx, cfg.Queue)
	if err != nil {
		return errm.Wrap(err, "failed to create queue")
	}
	ctx.Add(func(context.Context) error { return a.queue.Close() })

	a.forge, err = provider.New(cfg.Forge)
	if err != nil {
		return errm.Wrap(err, "failed to create forge client")
	}

	a.agent, err = agent.New(ctx, cfg.Agent)
	if err != nil {
		return errm.Wrap(err, "failed to create agent")
	}

	a.reviewer, err = reviewer.New(cfg.Reviewer, a.forge, a.agent, a.storage)
	if err != nil {
		return errm.Wrap(err, "failed to create reviewer")
	}
	ctx.Add(a.reviewer.Stop)

	a.consumer, err = queue.NewConsumer(a.queue, a.reviewer, a.failReview)
	if err != nil {
		return errm.Wrap(err, "failed to create queue consumer")
	}
	ctx.Add(a.consumer.Stop)

	a.intake = webhook.New(cfg.Webhook, a.storage, a.queue)

	a.server, err = server.New(cfg.Server, a.intake)
	if err != nil {
		return errm.Wrap(err, "failed to create webhook server")
	}
	ctx.Add(a.server.Stop)

	return nil
}

// failReview marks a review FAILED once the queue gives up on its job.
func (a *App) failReview(ctx context.Context, job model.ReviewJob, jobErr error) {
	a.log.Error("review job exhausted its attempts", "review_id", job.ReviewID, "error", jobErr)
	if err := a.storage.SetReviewStatus(ctx, job.ReviewID, model.ReviewStatusFailed); err != nil {
		a.log.Error("failed to mark review as failed", "review_id", job.ReviewID, "error", err)
	}
}
