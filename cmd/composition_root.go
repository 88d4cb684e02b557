package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	httpin "freight/internal/adapters/in/http"
	"freight/internal/adapters/out/composer"
	"freight/internal/adapters/out/postgres"
	"freight/internal/adapters/out/postgres/deliveryrepo"
	"freight/internal/adapters/out/postgres/journalrepo"
	"freight/internal/adapters/out/postgres/receiptrepo"
	"freight/internal/adapters/out/routes"
	"freight/internal/adapters/out/sms"
	"freight/internal/adapters/out/sqlite"
	"freight/internal/core/application/activities"
	"freight/internal/core/application/lifecycle"
	"freight/internal/core/application/usecases/commands"
	"freight/internal/core/application/usecases/queries"
	"freight/internal/core/ports"
	"freight/internal/jobs"
	"freight/internal/metrics"
	"freight/internal/workflow"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// CompositionRoot owns every long-lived dependency of the service.
type CompositionRoot struct {
	cfg    Config
	logger *slog.Logger

	gormDB     *gorm.DB
	registry   *prometheus.Registry
	deliveries *deliveryrepo.GormDeliveryRepository
	engine     *workflow.Engine
	client     *lifecycle.Client

	closers []func() error
}

// NewCompositionRoot connects to the database, migrates it and builds the
// workflow engine. The engine does not recover open runs until
// Engine().Recover is called.
func NewCompositionRoot(ctx context.Context, cfg Config, logger *slog.Logger) (*CompositionRoot, error) {
	gormDB, err := postgres.Open(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, err
	}

	root := &CompositionRoot{
		cfg:        cfg,
		logger:     logger,
		gormDB:     gormDB,
		registry:   prometheus.NewRegistry(),
		deliveries: deliveryrepo.NewGormDeliveryRepository(gormDB),
		closers:    []func() error{func() error { return postgres.Close(gormDB) }},
	}

	if err = root.build(ctx); err != nil {
		_ = root.Close()
		return nil, err
	}
	return root, nil
}

func (c *CompositionRoot) build(ctx context.Context) error {
	if err := postgres.Migrate(ctx, c.gormDB); err != nil {
		return err
	}

	journal, err := c.createJournal(ctx)
	if err != nil {
		return err
	}

	acts, err := c.createActivities()
	if err != nil {
		return err
	}
	registry := workflow.NewRegistry()
	acts.Register(registry)

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	defaults := c.cfg.LifecycleDefaults()
	c.engine, err = workflow.NewEngine(workflow.Options{
		Journal:  journal,
		Registry: registry,
		Factory:  lifecycle.NewFactory(defaults),
		Policy:   c.cfg.RetryPolicy(),
		Observer: metrics.NewCollector(c.registry),
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	c.client, err = lifecycle.NewClient(c.engine, defaults)
	if err != nil {
		return fmt.Errorf("build lifecycle client: %w", err)
	}
	return nil
}

func (c *CompositionRoot) createJournal(ctx context.Context) (workflow.Journal, error) {
	switch c.cfg.JournalDriver {
	case JournalSQLite:
		journal, err := sqlite.Open(ctx, c.cfg.JournalSQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, journal.Close)
		return journal, nil
	case JournalMemory:
		c.logger.Warn("using in-memory journal, open runs will not survive a restart")
		return workflow.NewMemoryJournal(), nil
	default:
		return journalrepo.NewGormJournal(c.gormDB), nil
	}
}

func (c *CompositionRoot) createActivities() (*activities.Activities, error) {
	routeLookup, err := routes.NewGoogleRoutes(c.cfg.GMapsKey)
	if err != nil {
		return nil, fmt.Errorf("build route lookup: %w", err)
	}

	deps := activities.Dependencies{
		Routes:     routeLookup,
		Deliveries: c.deliveries,
		Receipts:   receiptrepo.NewGormReceiptRepository(c.gormDB),
		Clock:      activities.SystemClock{},
		Logger:     c.logger,
	}

	if c.cfg.OpenAIAPIKey != "" {
		var composerImpl *composer.OpenAIComposer
		composerImpl, err = composer.NewOpenAIComposer(composer.Config{
			APIKey: c.cfg.OpenAIAPIKey,
			Model:  c.cfg.OpenAIModel,
		})
		if err != nil {
			return nil, fmt.Errorf("build message composer: %w", err)
		}
		deps.Composer = composerImpl
	} else {
		c.logger.Info("OPENAI_API_KEY not set, delay messages use the fixed text")
	}

	if c.cfg.SMSConfigured() {
		deps.Sender, err = c.createSender()
		if err != nil {
			return nil, err
		}
	} else {
		c.logger.Warn("Twilio credentials not set, delay notifications will fail")
	}

	return activities.New(deps)
}

func (c *CompositionRoot) createSender() (ports.MessageSender, error) {
	sender, err := sms.NewTwilioSender(sms.Config{
		AccountSID: c.cfg.TwilioAccountSID,
		AuthToken:  c.cfg.TwilioAuthToken,
		From:       c.cfg.TwilioPhoneNumber,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("build SMS sender: %w", err)
	}
	return sender, nil
}

// Engine returns the workflow engine hosting the delivery coordinators.
func (c *CompositionRoot) Engine() *workflow.Engine {
	return c.engine
}

// DB returns the shared database handle.
func (c *CompositionRoot) DB() *gorm.DB {
	return c.gormDB
}

// CreateStartDeliveryCommandHandler creates the handler that starts coordinators.
func (c *CompositionRoot) CreateStartDeliveryCommandHandler() commands.StartDeliveryCommandHandler {
	return commands.NewStartDeliveryCommandHandler(c.client)
}

// CreateUpdateLocationCommandHandler creates the handler that signals location updates.
func (c *CompositionRoot) CreateUpdateLocationCommandHandler() commands.UpdateLocationCommandHandler {
	return commands.NewUpdateLocationCommandHandler(c.client)
}

// CreateMarkDeliveredCommandHandler creates the handler that completes deliveries.
func (c *CompositionRoot) CreateMarkDeliveredCommandHandler() commands.MarkDeliveredCommandHandler {
	return commands.NewMarkDeliveredCommandHandler(c.client, c.deliveries)
}

// CreateGetDeliveryQueryHandler creates the single delivery query handler.
func (c *CompositionRoot) CreateGetDeliveryQueryHandler() queries.GetDeliveryQueryHandler {
	return queries.NewGetDeliveryQueryHandler(c.client, c.deliveries)
}

// CreateGetAllDeliveriesQueryHandler creates the list query handler.
func (c *CompositionRoot) CreateGetAllDeliveriesQueryHandler() queries.GetAllDeliveriesQueryHandler {
	return queries.NewGetAllDeliveriesQueryHandler(c.gormDB)
}

// CreateEcho builds the HTTP front end with every route mounted.
func (c *CompositionRoot) CreateEcho() *echo.Echo {
	level, _ := c.cfg.SlogLevel()
	e := httpin.NewEcho(c.logger, c.registry, level <= slog.LevelDebug)

	server := httpin.NewServer(
		c.CreateStartDeliveryCommandHandler(),
		c.CreateUpdateLocationCommandHandler(),
		c.CreateMarkDeliveredCommandHandler(),
		c.CreateGetDeliveryQueryHandler(),
		c.CreateGetAllDeliveriesQueryHandler(),
	)
	server.RegisterRoutes(e)

	return e
}

// CreateJobManager creates the recovery and compaction jobs with the
// configured schedules.
func (c *CompositionRoot) CreateJobManager() (*jobs.JobManager, error) {
	return jobs.NewJobManager(c.engine, jobs.Schedules{
		Recovery:   c.cfg.RecoverySchedule,
		Compaction: c.cfg.CompactionSchedule,
	}, c.cfg.JournalRetention, c.logger)
}

// Close releases the journal and the database, in reverse order of opening.
func (c *CompositionRoot) Close() error {
	var errList []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	c.closers = nil
	return errors.Join(errList...)
}
