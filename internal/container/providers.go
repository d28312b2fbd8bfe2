package container

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/narwhalmedia/segload/internal/config"
	domainevents "github.com/narwhalmedia/segload/internal/domain/events"
	"github.com/narwhalmedia/segload/internal/infrastructure/download"
	"github.com/narwhalmedia/segload/internal/infrastructure/events"
	"github.com/narwhalmedia/segload/internal/infrastructure/events/kafka"
	"github.com/narwhalmedia/segload/internal/infrastructure/events/nats"
	gormrepo "github.com/narwhalmedia/segload/internal/infrastructure/persistence/gorm"
	"github.com/narwhalmedia/segload/internal/scheduler"
)

func provideFetcher(cfg *config.Config, logger *zap.Logger) (*download.HTTPFetcher, func()) {
	fetcher := download.NewHTTPFetcher(cfg.HTTP, cfg.Transfer.RateLimit, logger)
	cleanup := func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("failed to close http client", zap.Error(err))
		}
	}
	return fetcher, cleanup
}

func provideScheduler(cfg *config.Config, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(cfg.Scheduler.MaxRunning, logger)
}

func provideEngine(
	cfg *config.Config,
	fetcher *download.HTTPFetcher,
	repo *gormrepo.DownloadRepository,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *download.Engine {
	return download.NewEngine(fetcher, repo, sched, download.StatfsChecker{}, download.OptionsFromConfig(cfg.Transfer), logger)
}

// providePublisher returns the lifecycle event sink selected by events.driver,
// or nil when events are disabled
func providePublisher(cfg *config.Config, store *gormrepo.EventStore, logger *zap.Logger) (domainevents.EventPublisher, func(), error) {
	switch cfg.Events.Driver {
	case "", "none":
		return nil, func() {}, nil
	case "store":
		return store, func() {}, nil
	case "nats":
		client, cleanup, err := nats.NewClient(cfg.Events.NATS, logger)
		if err != nil {
			return nil, nil, err
		}
		return nats.NewPublisher(client, logger), cleanup, nil
	case "kafka":
		publisher, err := kafka.NewPublisher(cfg.Events.Kafka)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		cleanup := func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close kafka producer", zap.Error(err))
			}
		}
		return publisher, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported events driver: %q", cfg.Events.Driver)
	}
}

// provideManager builds the manager; its cleanup pauses every active task
// before the record store and event sinks are closed
func provideManager(engine *download.Engine, publisher domainevents.EventPublisher, logger *zap.Logger) (*download.Manager, func()) {
	var opts []download.ManagerOption
	if publisher != nil {
		opts = append(opts, download.WithListenerFactory(events.NewListenerFactory(publisher, logger)))
	}
	manager := download.NewManager(engine, opts...)
	return manager, manager.Shutdown
}

func provideDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, func(), error) {
	return gormrepo.NewDB(cfg, logger)
}
