package download

import (
	"time"

	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/config"
	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/internal/scheduler"
)

// Options tunes segmented transfers
type Options struct {
	ChunkSize   int64
	Parallelism int
	RetryRounds int
	RetryDelay  time.Duration
	BufferSize  int
	TempSuffix  string
}

// DefaultOptions mirrors the built-in transfer configuration
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Transfer)
}

// OptionsFromConfig converts the transfer configuration section
func OptionsFromConfig(cfg config.TransferConfig) Options {
	return Options{
		ChunkSize:   cfg.ChunkSize,
		Parallelism: cfg.Parallelism,
		RetryRounds: cfg.RetryRounds,
		RetryDelay:  cfg.RetryDelay,
		BufferSize:  cfg.BufferSize,
		TempSuffix:  cfg.TempSuffix,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = download.DefaultChunkSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = download.DefaultParallelism
	}
	if o.RetryRounds <= 0 {
		o.RetryRounds = 1
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 32 * 1024
	}
	if o.TempSuffix == "" {
		o.TempSuffix = download.DefaultTempSuffix
	}
	return o
}

// Engine bundles the collaborators every task needs. It is built once and
// passed to the Manager; nothing in this package keeps process-wide state.
type Engine struct {
	Fetcher    download.Fetcher
	Repository download.Repository
	Scheduler  *scheduler.Scheduler
	Space      download.SpaceChecker
	Validator  *FileValidator
	Options    Options
	Logger     *zap.Logger
}

// NewEngine assembles an engine, filling unset options with defaults
func NewEngine(
	fetcher download.Fetcher,
	repository download.Repository,
	sched *scheduler.Scheduler,
	space download.SpaceChecker,
	opts Options,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		Fetcher:    fetcher,
		Repository: repository,
		Scheduler:  sched,
		Space:      space,
		Validator:  NewFileValidator(logger),
		Options:    opts.withDefaults(),
		Logger:     logger,
	}
}
