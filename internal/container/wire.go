//go:build wireinject
// +build wireinject

package container

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/config"
	gormrepo "github.com/narwhalmedia/segload/internal/infrastructure/persistence/gorm"
)

// InitializeContainer wires the download manager with all dependencies
func InitializeContainer(cfg *config.Config, logger *zap.Logger) (*Container, func(), error) {
	wire.Build(
		// Database
		provideDB,
		gormrepo.NewDownloadRepository,
		gormrepo.NewEventStore,

		// Events
		providePublisher,

		// Transfer engine
		provideFetcher,
		provideScheduler,
		provideEngine,
		provideManager,

		// Container
		wire.Struct(new(Container), "*"),
	)

	return nil, nil, nil
}
