package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobchange-cli/internal/checkpoint"
	"github.com/sells-group/jobchange-cli/internal/config"
	"github.com/sells-group/jobchange-cli/internal/detect"
	"github.com/sells-group/jobchange-cli/internal/enrich"
	"github.com/sells-group/jobchange-cli/internal/filter"
	"github.com/sells-group/jobchange-cli/internal/match"
	"github.com/sells-group/jobchange-cli/internal/pipeline"
	"github.com/sells-group/jobchange-cli/internal/provider"
	"github.com/sells-group/jobchange-cli/internal/resilience"
	"github.com/sells-group/jobchange-cli/internal/rowstore"
)

var (
	runStartRow   int
	runEndRow     int
	runBatchSize  int
	runDryRun     bool
	runForce      bool
	runReverse    bool
	runReenrich   bool
	runIncludeNew bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan the roster, detect job changes and enrich contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := rowstore.Open(ctx, rowstore.Config{
			Backend: cfg.Store.Backend,
			Path:    cfg.Store.Path,
			Sheet:   cfg.Store.Sheet,
			DSN:     cfg.Store.DSN,
		})
		if err != nil {
			return eris.Wrap(err, "run: open row store")
		}
		defer store.Close()

		matchCfg := match.DefaultConfig()
		if cfg.Match.ConfigPath != "" {
			matchCfg, err = match.LoadConfig(cfg.Match.ConfigPath)
			if err != nil {
				return eris.Wrap(err, "run: load match config")
			}
		}
		matcher, err := match.New(matchCfg)
		if err != nil {
			return eris.Wrap(err, "run: build matcher")
		}

		profiles := provider.NewBrightData(provider.BrightDataConfig{
			APIKey:               cfg.BrightData.APIKey,
			DatasetID:            cfg.BrightData.DatasetID,
			BaseURL:              cfg.BrightData.BaseURL,
			Timeout:              time.Duration(cfg.BrightData.TimeoutSecs) * time.Second,
			BatchSize:            cfg.BrightData.BatchSize,
			MaxConcurrentBatches: cfg.BrightData.MaxBatches,
			PollInterval:         time.Duration(cfg.BrightData.PollIntervalSecs) * time.Second,
			MaxPollAttempts:      cfg.BrightData.MaxPollAttempts,
		})
		leadMagic := provider.NewLeadMagic(provider.LeadMagicConfig{
			APIKey:        cfg.LeadMagic.APIKey,
			BaseURL:       cfg.LeadMagic.BaseURL,
			Timeout:       time.Duration(cfg.LeadMagic.TimeoutSecs) * time.Second,
			MaxConcurrent: cfg.LeadMagic.MaxConcurrent,
			MinInterval:   cfg.LeadMagic.Rate.MinInterval(),
		})
		betterContact := provider.NewBetterContact(provider.BetterContactConfig{
			APIKey:               cfg.BetterContact.APIKey,
			BaseURL:              cfg.BetterContact.BaseURL,
			Timeout:              time.Duration(cfg.BetterContact.TimeoutSecs) * time.Second,
			BatchSize:            cfg.BetterContact.BatchSize,
			MaxConcurrentBatches: cfg.BetterContact.MaxBatches,
			PollInterval:         time.Duration(cfg.BetterContact.PollIntervalSecs) * time.Second,
			MaxPollAttempts:      cfg.BetterContact.MaxPollAttempts,
		})

		profLim := limiterFor("brightdata", cfg.BrightData.Rate)
		lmLim := limiterFor("leadmagic", cfg.LeadMagic.Rate)
		bcLim := limiterFor("bettercontact", cfg.BetterContact.Rate)

		// Phones try LeadMagic first, emails try Better Contact first; each
		// chain falls through to the other vendor on a miss.
		phones := enrich.NewChain(provider.KindPhone,
			enrich.Step{Gateway: leadMagic, Limiter: lmLim},
			enrich.Step{Gateway: betterContact, Limiter: bcLim},
		)
		emails := enrich.NewChain(provider.KindEmail,
			enrich.Step{Gateway: betterContact, Limiter: bcLim},
			enrich.Step{Gateway: leadMagic, Limiter: lmLim},
		)

		cp := checkpoint.NewManager(cfg.Checkpoint.Dir, runReverse)

		startRow := runStartRow
		if startRow == 0 {
			startRow = cfg.Scan.StartRow
		}
		batchSize := runBatchSize
		if batchSize == 0 {
			batchSize = cfg.Scan.BatchSize
		}

		pipe := pipeline.New(
			store,
			cp,
			profiles,
			profLim,
			phones,
			emails,
			detect.New(matcher),
			filter.SkipRule{InternalDomains: cfg.Filter.InternalDomains},
			pipeline.NewSpool(cfg.Spool.Dir),
			pipeline.Options{
				StartRow:   startRow,
				EndRow:     runEndRow,
				BatchSize:  batchSize,
				DryRun:     runDryRun,
				Force:      runForce,
				Reverse:    runReverse,
				Reenrich:   runReenrich,
				IncludeNew: runIncludeNew,
			},
		)

		if err := pipe.Run(ctx); err != nil {
			return err
		}

		fmt.Println(cp.Summary())
		return nil
	},
}

// limiterFor builds a provider limiter from its configured envelope, logging
// each retry under the provider's name.
func limiterFor(name string, rate config.RateConfig) *resilience.Limiter {
	policy := resilience.DefaultPolicy()
	if rate.MaxAttempts > 0 {
		policy.MaxAttempts = rate.MaxAttempts
	}
	policy.OnRetry = resilience.RetryLogger(name, "request")
	zap.L().Debug("limiter configured",
		zap.String("provider", name),
		zap.Int("max_in_flight", rate.MaxInFlight),
		zap.Duration("min_interval", rate.MinInterval()),
		zap.Int("max_attempts", policy.MaxAttempts),
	)
	return resilience.NewLimiter(rate.MaxInFlight, rate.MinInterval(), policy)
}

func init() {
	runCmd.Flags().IntVar(&runStartRow, "start-row", 0, "first roster row to process (default from config)")
	runCmd.Flags().IntVar(&runEndRow, "end-row", 0, "last roster row to process (0 = through the end)")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "contacts per batch (default from config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "process without writing back to the row store")
	runCmd.Flags().BoolVar(&runForce, "force", false, "ignore the existing checkpoint and reprocess the range")
	runCmd.Flags().BoolVar(&runReverse, "reverse", false, "scan from the bottom of the roster upward")
	runCmd.Flags().BoolVar(&runReenrich, "reenrich", false, "backfill phones and emails for rows below the start row first")
	runCmd.Flags().BoolVar(&runIncludeNew, "include-new", false, "process rows appended since the last checkpoint")
	rootCmd.AddCommand(runCmd)
}
