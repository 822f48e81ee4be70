package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/cache"
	"github.com/sst-resolve/resolve-service/internal/config"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/lifecycle"
	"github.com/sst-resolve/resolve-service/internal/notify"
	"github.com/sst-resolve/resolve-service/internal/observability"
	"github.com/sst-resolve/resolve-service/internal/persistence"
	"github.com/sst-resolve/resolve-service/internal/repository"
	"github.com/sst-resolve/resolve-service/internal/repository/memory"
	"github.com/sst-resolve/resolve-service/internal/service"
	"github.com/sst-resolve/resolve-service/internal/sla"
	"github.com/sst-resolve/resolve-service/internal/worker"
)

// application holds the wired services shared by every subcommand.
type application struct {
	cfg      *config.Config
	logger   *zap.Logger
	postgres *persistence.Postgres
	redis    *persistence.Redis
	store    repository.Transactor
	machine  *lifecycle.Machine
	resolver *sla.Resolver

	tickets     *service.TicketService
	assignments *service.AssignmentService
	escalations *service.EscalationService
	sweeps      *service.SweepService
	analytics   *service.AnalyticsService

	publishers []events.Publisher
	kafka      *events.KafkaPublisher
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}

// newApplication connects storage and builds the services. Without POSTGRES_DSN
// the in-memory store is used.
func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	app.postgres = pg
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		app.store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		app.store = memory.NewStore(nil)
	}

	app.redis = persistence.NewRedis(ctx, cfg.Redis, logger)

	app.machine = lifecycle.NewMachine(nil)
	app.resolver = sla.NewResolver(app.store.Repositories().Rules, app.store.Repositories().Users,
		app.policyCache(), logger.Named("sla"))

	app.tickets = service.NewTicketService(service.TicketDependencies{
		Store:    app.store,
		Resolver: app.resolver,
		Machine:  app.machine,
		Logger:   logger,
	})
	app.assignments = service.NewAssignmentService(service.AssignmentDependencies{
		Store:   app.store,
		Machine: app.machine,
		Logger:  logger,
	})
	app.escalations = service.NewEscalationService(service.EscalationDependencies{
		Store:    app.store,
		Resolver: app.resolver,
		Machine:  app.machine,
		Logger:   logger,
	})
	app.sweeps = service.NewSweepService(service.SweepDependencies{
		Store:             app.store,
		Escalations:       app.escalations,
		Machine:           app.machine,
		Logger:            logger.Named("sweeper"),
		BatchSize:         cfg.SLA.SweepBatchSize,
		AutoEscalateAfter: cfg.SLA.AutoEscalateAfter,
	})
	app.analytics = service.NewAnalyticsService(app.store, app.machine)

	if err := app.buildPublishers(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// sharedPolicyCache reports whether resolved policies live in Redis, where every
// instance reads them.
func (a *application) sharedPolicyCache() bool {
	return a.cfg.SLA.PolicyCacheBackend == "redis" && a.redis.Enabled()
}

func (a *application) policyCache() sla.PolicyCache {
	ttl := a.cfg.SLA.PolicyCacheTTL()
	if a.sharedPolicyCache() {
		return cache.NewRedisPolicyCache(a.redis.Client, ttl, a.logger.Named("policy_cache"))
	}
	return sla.NewMemoryPolicyCache(ttl, nil)
}

// buildPublishers wires notifications through the in-process dispatcher and,
// when brokers are configured, Kafka.
func (a *application) buildPublishers() error {
	var mailer notify.Mailer
	if a.cfg.Notification.SMTPEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:        a.cfg.Notification.SMTPHost,
			Port:        a.cfg.Notification.SMTPPort,
			Username:    a.cfg.Notification.SMTPUsername,
			Password:    a.cfg.Notification.SMTPPassword,
			FromAddress: a.cfg.Notification.EmailFrom,
		})
	} else {
		mailer = notify.NewLogMailer(a.logger.Named("mail"))
	}

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, a.store, mailer, a.logger.Named("notifications"))
	a.publishers = []events.Publisher{worker.StartNotificationWorker(dispatcher, notifications)}

	if len(a.cfg.Notification.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(a.cfg.Notification.KafkaBrokers, a.cfg.Notification.KafkaTopicPrefix)
		if err != nil {
			return fmt.Errorf("init kafka publisher: %w", err)
		}
		a.kafka = kafka
		a.publishers = append(a.publishers, kafka)
	}
	return nil
}

func (a *application) outboxRelay() *worker.OutboxRelay {
	return worker.NewOutboxRelay(a.store, a.publishers, a.logger.Named("outbox"), worker.RelayConfig{
		Interval:    a.cfg.Outbox.PollInterval(),
		BatchSize:   a.cfg.Outbox.BatchSize,
		MaxAttempts: a.cfg.Outbox.MaxAttempts,
	})
}

// Close releases connections.
func (a *application) Close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("closing kafka writer", zap.Error(err))
		}
	}
	a.redis.Close()
	a.postgres.Close()
}

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
