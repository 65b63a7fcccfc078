package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobchange-cli/internal/checkpoint"
	"github.com/sells-group/jobchange-cli/internal/rowstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint progress for both scan directions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		ctx := cmd.Context()

		// The live row count lets us report drift; a missing roster file is
		// not fatal here.
		liveTotal := 0
		if store, err := rowstore.Open(ctx, rowstore.Config{
			Backend: cfg.Store.Backend,
			Path:    cfg.Store.Path,
			Sheet:   cfg.Store.Sheet,
			DSN:     cfg.Store.DSN,
		}); err != nil {
			zap.L().Debug("row store unavailable, skipping drift report", zap.Error(err))
		} else {
			defer store.Close()
			if liveTotal, err = store.TotalRows(ctx); err != nil {
				zap.L().Debug("row count unavailable", zap.Error(err))
				liveTotal = 0
			}
		}

		for _, reverse := range []bool{false, true} {
			label := "Forward scan"
			if reverse {
				label = "Reverse scan"
			}
			fmt.Printf("%s:\n", label)

			mgr := checkpoint.NewManager(cfg.Checkpoint.Dir, reverse)
			cp, err := mgr.Load()
			if err != nil {
				return err
			}
			fmt.Print(mgr.Summary())

			if cp != nil {
				if line := driftLine(cp.KnownTotalRows, liveTotal); line != "" {
					fmt.Println(line)
				}
			}
			fmt.Println()
		}
		return nil
	},
}

// driftLine describes roster growth since the checkpoint, naming the row span
// so the operator knows exactly which rows a --include-new run would cover.
// Empty when the roster has not grown.
func driftLine(knownTotal, liveTotal int) string {
	if knownTotal <= 0 || liveTotal <= knownTotal {
		return ""
	}
	return fmt.Sprintf("New rows since checkpoint: %d (rows %d to %d), rerun with --include-new",
		liveTotal-knownTotal, knownTotal+1, liveTotal)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
