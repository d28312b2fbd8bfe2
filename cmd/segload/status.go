package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	domain "github.com/narwhalmedia/segload/internal/domain/download"
	gormrepo "github.com/narwhalmedia/segload/internal/infrastructure/persistence/gorm"
)

var showEvents bool

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show persisted downloads",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := setup(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		if len(args) == 0 {
			records, err := c.Manager.List(ctx)
			if err != nil {
				return err
			}
			fmt.Println(renderRecords(records))
			return nil
		}

		record, err := c.Manager.Status(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(renderRecord(record))

		if showEvents {
			return printEvents(ctx, c.EventStore, record.TaskID)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&showEvents, "events", false, "Also print the local event log (events driver \"store\")")
}

var labelStyle = lipgloss.NewStyle().Bold(true).Width(16)

func renderRecords(records []*domain.TaskRecord) string {
	if len(records) == 0 {
		return "no downloads"
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "FILE", "STATUS", "PROGRESS", "SIZE", "UPDATED")
	for _, r := range records {
		t.Row(
			r.TaskID,
			r.FileName,
			r.Status.String(),
			strconv.Itoa(r.Progress)+"%",
			formatSize(r.ContentLength),
			humanize.Time(r.UpdatedAt),
		)
	}
	return t.Render()
}

func renderRecord(r *domain.TaskRecord) string {
	rows := [][2]string{
		{"id", r.TaskID},
		{"url", r.URL},
		{"target", r.Target},
		{"status", r.Status.String()},
		{"progress", strconv.Itoa(r.Progress) + "%"},
		{"size", formatSize(r.ContentLength)},
		{"ranges", r.AcceptRanges},
		{"etag", r.ETag},
		{"last modified", r.LastModified},
		{"created", r.CreatedAt.Local().Format(time.RFC3339)},
		{"updated", r.UpdatedAt.Local().Format(time.RFC3339)},
	}
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(row[1])
		b.WriteString("\n")
	}
	return b.String()
}

func printEvents(ctx context.Context, store *gormrepo.EventStore, taskID string) error {
	history, err := store.History(ctx, taskID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no events recorded")
		return nil
	}
	for _, e := range history {
		fmt.Printf("%s  %-20s %s\n", e.CreatedAt.Local().Format(time.RFC3339), e.EventType, string(e.Data))
	}
	return nil
}

func formatSize(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}
