package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	domain "github.com/narwhalmedia/segload/internal/domain/download"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Discard a download's partial data and records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := setup(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		record, err := c.Manager.Status(ctx, args[0])
		if err != nil {
			return err
		}
		if err := c.Manager.Purge(ctx, record.TaskID); err != nil {
			return err
		}
		if err := c.EventStore.Purge(ctx, record.TaskID); err != nil {
			c.Logger.Warn("failed to purge event log", zap.Error(err))
		}

		// only a whole-file transfer writes into the target before completion
		wholeFile := record.AcceptRanges != "bytes" || record.ContentLength <= 0
		if wholeFile && record.Status != domain.StatusComplete {
			if err := os.Remove(record.Target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove partial target: %w", err)
			}
		}

		fmt.Printf("canceled %s\n", record.TaskID)
		return nil
	},
}
