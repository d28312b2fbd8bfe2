// Package container assembles the download manager and its collaborators.
package container

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/narwhalmedia/segload/internal/config"
	"github.com/narwhalmedia/segload/internal/infrastructure/download"
	gormrepo "github.com/narwhalmedia/segload/internal/infrastructure/persistence/gorm"
)

// Container holds all dependencies of the segload process
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *gorm.DB
	Repository *gormrepo.DownloadRepository
	EventStore *gormrepo.EventStore
	Manager    *download.Manager
}
