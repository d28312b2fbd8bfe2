package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/config"
	domain "github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/internal/infrastructure/download"
	"github.com/narwhalmedia/segload/internal/ui"
)

var getOpts struct {
	output   string
	name     string
	id       string
	parallel int
	priority int
	noSplit  bool
	headers  []string
	quiet    bool
}

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Download a resource, resuming earlier progress",
	Long: `Download a resource in parallel byte ranges.

Interrupting with ctrl+c pauses the download; running the same command again
resumes it where it stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd.Context(), args[0])
	},
}

func init() {
	f := getCmd.Flags()
	f.StringVarP(&getOpts.output, "output", "o", "", "Target file path (default: last path element of the url)")
	f.StringVar(&getOpts.name, "name", "", "Display file name")
	f.StringVar(&getOpts.id, "id", "", "Task id (default: derived from the url)")
	f.IntVarP(&getOpts.parallel, "parallel", "n", 0, "Segments transferred at once (default from config)")
	f.IntVar(&getOpts.priority, "priority", 0, "Admission priority, higher runs first")
	f.BoolVar(&getOpts.noSplit, "no-split", false, "Transfer as a single segment")
	f.StringArrayVarP(&getOpts.headers, "header", "H", nil, `Extra request header "Key: Value" (repeatable)`)
	f.BoolVarP(&getOpts.quiet, "quiet", "q", false, "No progress display, log only")
}

func runGet(ctx context.Context, url string) error {
	headers, err := parseHeaders(getOpts.headers)
	if err != nil {
		return err
	}

	c, cleanup, err := setup(func(cfg *config.Config) {
		// the progress view owns the terminal; keep stderr quiet unless asked
		if !getOpts.quiet && !verbose && cfg.Log.File == "" {
			cfg.Log.Level = "error"
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()

	tracker := ui.NewTracker()
	builder := c.Manager.Create(url).
		SetHeaders(headers).
		SetPriority(getOpts.priority).
		SetNoSplit(getOpts.noSplit).
		SetCallback(tracker)
	if getOpts.output != "" {
		builder.SetTarget(getOpts.output)
	}
	if getOpts.name != "" {
		builder.SetFileName(getOpts.name)
	}
	if getOpts.id != "" {
		builder.SetRequestID(getOpts.id)
	}
	if getOpts.parallel != 0 {
		builder.SetParallelNum(getOpts.parallel)
	}

	task, err := builder.Start()
	if err != nil {
		return err
	}

	if getOpts.quiet {
		return waitQuiet(ctx, c.Logger, task)
	}
	return waitInteractive(task, tracker)
}

func waitQuiet(ctx context.Context, log *zap.Logger, task *download.Task) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-task.Done():
	case <-ctx.Done():
		log.Info("interrupted, pausing download", zap.String("task_id", task.ID()))
		task.Pause()
		<-task.Done()
	}

	if err := task.Err(); err != nil {
		return err
	}
	if task.Status() == domain.StatusPaused {
		fmt.Fprintf(os.Stderr, "paused %s, run the same command again to resume\n", task.ID())
		return nil
	}
	fmt.Println(task.Request().Target())
	return nil
}

func waitInteractive(task *download.Task, tracker *ui.Tracker) error {
	model := ui.NewModel(task.Request().FileName(), tracker, task.Pause)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("progress display failed: %w", err)
	}

	// a second ctrl+c leaves the view before the pause was confirmed
	task.Pause()
	<-task.Done()

	if m, ok := final.(ui.Model); ok && m.Err() != nil {
		return m.Err()
	}
	return task.Err()
}

func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Key: Value\"", v)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}
