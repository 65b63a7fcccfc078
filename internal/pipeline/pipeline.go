// Package pipeline orchestrates the scan: load the roster, filter out
// non-actionable rows, resolve profiles, classify job changes, run the
// enrichment chains and write the results back, checkpointing after every
// batch so an interrupted run resumes instead of re-spending credits.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/jobchange-cli/internal/checkpoint"
	"github.com/sells-group/jobchange-cli/internal/detect"
	"github.com/sells-group/jobchange-cli/internal/enrich"
	"github.com/sells-group/jobchange-cli/internal/filter"
	"github.com/sells-group/jobchange-cli/internal/model"
	"github.com/sells-group/jobchange-cli/internal/provider"
	"github.com/sells-group/jobchange-cli/internal/resilience"
	"github.com/sells-group/jobchange-cli/internal/rowstore"
)

// Options are the per-run knobs, mapped one-to-one from the run command's
// flags.
type Options struct {
	StartRow  int
	EndRow    int // 0 means through the last populated row
	BatchSize int
	DryRun    bool
	Force     bool
	Reverse   bool

	// Reenrich runs a backfill pass over rows 2..ReenrichEndRow before the
	// main scan. ReenrichEndRow defaults to StartRow-1.
	Reenrich       bool
	ReenrichEndRow int

	// IncludeNew widens the range to cover rows appended since the last run.
	IncludeNew bool
}

// Pipeline wires the scan's dependencies together.
type Pipeline struct {
	store    rowstore.Store
	cp       *checkpoint.Manager
	profiles provider.ProfileSource
	profLim  *resilience.Limiter
	phones   *enrich.Chain
	emails   *enrich.Chain
	detector *detect.Detector
	skip     filter.SkipRule
	spool    *Spool
	opts     Options
}

// New creates a Pipeline. The phone chain serves both the general pass and
// the job-changer pass; the email chain serves job changers only.
func New(
	store rowstore.Store,
	cp *checkpoint.Manager,
	profiles provider.ProfileSource,
	profLim *resilience.Limiter,
	phones *enrich.Chain,
	emails *enrich.Chain,
	detector *detect.Detector,
	skip filter.SkipRule,
	spool *Spool,
	opts Options,
) *Pipeline {
	if opts.StartRow < 2 {
		opts.StartRow = 2
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &Pipeline{
		store:    store,
		cp:       cp,
		profiles: profiles,
		profLim:  profLim,
		phones:   phones,
		emails:   emails,
		detector: detector,
		skip:     skip,
		spool:    spool,
		opts:     opts,
	}
}

func (p *Pipeline) direction() string {
	if p.opts.Reverse {
		return checkpoint.DirectionReverse
	}
	return checkpoint.DirectionForward
}

// Run executes the scan. Batch failures queue their rows for the next run and
// the scan continues; only context cancellation and unrecoverable setup
// errors abort it.
func (p *Pipeline) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("direction", p.direction()))

	if p.opts.Reenrich {
		if err := p.ReenrichExisting(ctx); err != nil {
			return err
		}
	}

	contacts, liveTotal, err := p.load(ctx)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		log.Warn("no contacts to process")
		return nil
	}

	existing, err := p.cp.Load()
	if err != nil {
		return err
	}

	// Rows appended since the checkpoint was created are reported always and
	// processed only on request.
	if grown := p.cp.DetectNewRows(liveTotal); grown > 0 {
		if p.opts.IncludeNew {
			log.Info("including newly appended rows in this run", zap.Int("new_rows", grown))
		} else {
			log.Info("newly appended rows detected, rerun with --include-new to process them",
				zap.Int("new_rows", grown))
			contacts = trimToRange(contacts, p.opts.StartRow, liveTotal-grown)
		}
	}

	switch {
	case existing != nil && !p.opts.Force:
		contacts = p.resume(existing, contacts, log)
	case existing != nil && p.opts.Force:
		log.Info("force enabled, reprocessing the full range",
			zap.Int("start_row", p.opts.StartRow),
			zap.Int("end_row", p.opts.EndRow),
		)
	default:
		start := p.opts.StartRow
		if p.opts.Reverse && len(contacts) > 0 {
			start = contacts[0].Row // already reversed, first is highest
		}
		if _, err := p.cp.Create(start, len(contacts), liveTotal, p.direction()); err != nil {
			return err
		}
	}

	toProcess, skipped := p.filterContacts(contacts)
	if err := p.writeSkipStatuses(ctx, skipped); err != nil {
		log.Error("writing skip statuses failed", zap.Error(err))
		p.cp.Update(func(cp *checkpoint.Checkpoint) { cp.Stats.Errors++ })
	}

	size := p.opts.BatchSize
	totalBatches := (len(toProcess) + size - 1) / size
	log.Info("processing contacts",
		zap.Int("contacts", len(toProcess)),
		zap.Int("batches", totalBatches),
		zap.Int("batch_size", size),
	)

	for start := 0; start < len(toProcess); start += size {
		batch := toProcess[start:min(start+size, len(toProcess))]
		batchNum := start/size + 1
		log.Info("batch starting",
			zap.Int("batch", batchNum),
			zap.Int("of", totalBatches),
			zap.Int("first_row", batch[0].Row),
			zap.Int("last_row", batch[len(batch)-1].Row),
		)

		updates, failedRows, err := p.processBatch(ctx, batch)
		if err != nil {
			return err
		}
		for _, row := range failedRows {
			p.cp.AddFailedRow(row)
		}
		if len(failedRows) > 0 {
			p.cp.Update(func(cp *checkpoint.Checkpoint) { cp.Stats.Errors++ })
		}

		if err := p.persist(ctx, updates); err != nil {
			log.Error("batch persist failed, rows queued for retry",
				zap.Int("batch", batchNum),
				zap.Error(err),
			)
			for _, u := range updates {
				p.cp.AddFailedRow(u.Row)
			}
			p.cp.Update(func(cp *checkpoint.Checkpoint) { cp.Stats.Errors++ })
			if err := p.cp.Save(); err != nil {
				return err
			}
			continue
		}

		for _, u := range updates {
			p.advance(u.Row)
			p.cp.RemoveFailedRow(u.Row)
		}
		if err := p.cp.Save(); err != nil {
			return err
		}
	}

	p.setStage(checkpoint.StageComplete)
	if err := p.cp.SetKnownTotalRows(liveTotal); err != nil {
		return err
	}
	log.Info("run complete")
	return nil
}

// load reads the roster and trims it to the configured range, reversing the
// order for bottom-up scans.
func (p *Pipeline) load(ctx context.Context) ([]model.Contact, int, error) {
	liveTotal, err := p.store.TotalRows(ctx)
	if err != nil {
		return nil, 0, err
	}

	all, err := p.store.Load(ctx)
	if err != nil {
		return nil, 0, err
	}

	contacts := trimToRange(all, p.opts.StartRow, p.opts.EndRow)
	if p.opts.Reverse {
		for i, j := 0, len(contacts)-1; i < j; i, j = i+1, j-1 {
			contacts[i], contacts[j] = contacts[j], contacts[i]
		}
	}

	zap.L().Info("contacts loaded",
		zap.Int("contacts", len(contacts)),
		zap.Int("live_total_rows", liveTotal),
		zap.Int("start_row", p.opts.StartRow),
		zap.Int("end_row", p.opts.EndRow),
	)
	return contacts, liveTotal, nil
}

func trimToRange(contacts []model.Contact, startRow, endRow int) []model.Contact {
	out := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.Row < startRow {
			continue
		}
		if endRow > 0 && c.Row > endRow {
			continue
		}
		out = append(out, c)
	}
	return out
}

// resume drops rows the previous run already covered. Forward scans continue
// above the last processed row, reverse scans below it.
func (p *Pipeline) resume(existing *checkpoint.Checkpoint, contacts []model.Contact, log *zap.Logger) []model.Contact {
	if p.opts.Reverse {
		// A fresh reverse cursor sits one above the highest row, so the filter
		// keeps everything; a finished scan's cursor sits below the range and
		// keeps nothing.
		resumeRow := existing.LastProcessedRow - 1
		log.Info("resuming reverse scan", zap.Int("from_row", resumeRow))
		return keepRows(contacts, func(row int) bool { return row <= resumeRow })
	}

	resumeRow := existing.LastProcessedRow + 1
	if resumeRow <= p.opts.StartRow {
		return contacts
	}
	log.Info("resuming scan", zap.Int("from_row", resumeRow))
	return keepRows(contacts, func(row int) bool { return row >= resumeRow })
}

func keepRows(contacts []model.Contact, keep func(row int) bool) []model.Contact {
	out := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if keep(c.Row) {
			out = append(out, c)
		}
	}
	return out
}

// filterContacts splits the roster into actionable and skipped rows.
func (p *Pipeline) filterContacts(contacts []model.Contact) (toProcess, skipped []model.Contact) {
	for _, c := range contacts {
		if shouldSkip, reason := p.skip.ShouldSkip(c.Email, c.FirstName, c.LastName); shouldSkip {
			c.SkipReason = reason
			skipped = append(skipped, c)
			p.cp.Update(func(cp *checkpoint.Checkpoint) { cp.Stats.Skipped++ })
			continue
		}
		toProcess = append(toProcess, c)
	}
	zap.L().Info("contacts filtered",
		zap.Int("to_process", len(toProcess)),
		zap.Int("skipped", len(skipped)),
	)
	return toProcess, skipped
}

// writeSkipStatuses records why each skipped row was excluded.
func (p *Pipeline) writeSkipStatuses(ctx context.Context, skipped []model.Contact) error {
	if len(skipped) == 0 {
		return nil
	}
	today := time.Now().Format("2006-01-02")
	updates := make([]model.Update, 0, len(skipped))
	for _, c := range skipped {
		var u model.Update
		u.Row = c.Row
		u.Set(model.FieldEnrichmentStatus, c.SkipReason)
		u.Set(model.FieldLastProcessedDate, today)
		updates = append(updates, u)
	}
	return p.persist(ctx, updates)
}

// persist applies updates to the row store. Dry runs log instead of writing.
// On failure the updates are spooled to disk before the error propagates, so
// nothing enriched at provider cost is lost.
func (p *Pipeline) persist(ctx context.Context, updates []model.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if p.opts.DryRun {
		zap.L().Info("dry run, skipping row store writes", zap.Int("updates", len(updates)))
		return nil
	}
	if err := p.store.Apply(ctx, updates); err != nil {
		if path, spoolErr := p.spool.Save(updates, err); spoolErr != nil {
			zap.L().Error("spooling failed updates also failed", zap.Error(spoolErr))
		} else {
			zap.L().Warn("updates spooled for manual replay", zap.String("path", path))
		}
		return err
	}
	zap.L().Info("row store updated", zap.Int("updates", len(updates)))
	return nil
}

// setStage records which pipeline phase the scan is in; the stage survives a
// crash with the rest of the checkpoint.
func (p *Pipeline) setStage(stage string) {
	p.cp.Update(func(cp *checkpoint.Checkpoint) { cp.Stage = stage })
}

// advance moves the checkpoint cursor past a persisted row and counts it.
func (p *Pipeline) advance(row int) {
	reverse := p.opts.Reverse
	p.cp.Update(func(cp *checkpoint.Checkpoint) {
		if reverse {
			if row < cp.LastProcessedRow {
				cp.LastProcessedRow = row
			}
		} else if row > cp.LastProcessedRow {
			cp.LastProcessedRow = row
		}
		cp.Stats.Processed++
	})
}
