package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobchange-cli/internal/filter"
	"github.com/sells-group/jobchange-cli/internal/model"
	"github.com/sells-group/jobchange-cli/internal/resilience"
)

// Collect submits one batch through the limiter and polls until the job is
// ready. A job still pending after the gateway's poll budget is a permanent
// error; the rows go back to the caller as failed, not as not-found.
func Collect(ctx context.Context, g Gateway, lim *resilience.Limiter, reqs []Request) ([]Record, error) {
	jobID, err := resilience.Run(ctx, lim, func(ctx context.Context) (string, error) {
		return g.Submit(ctx, reqs)
	})
	if err != nil {
		return nil, err
	}

	limits := g.Limits()
	polls := limits.MaxPollAttempts
	if polls <= 0 {
		polls = 1
	}

	for attempt := 0; attempt < polls; attempt++ {
		att, err := resilience.Run(ctx, lim, func(ctx context.Context) (Attempt, error) {
			return g.Poll(ctx, jobID)
		})
		if err != nil {
			return nil, err
		}

		switch att.Status {
		case StatusReady:
			return att.Records, nil
		case StatusFailed:
			if att.Err != nil {
				return nil, att.Err
			}
			return nil, eris.Errorf("%s: job %s failed", g.Name(), jobID)
		}

		if attempt == polls-1 {
			break
		}
		timer := time.NewTimer(limits.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, eris.Errorf("%s: job %s still pending after %d polls", g.Name(), jobID, polls)
}

// Dispatch chunks the requests by the gateway's batch size and runs the
// batches concurrently. A failed batch does not abort the others; its
// requests are returned so the caller can record them for the next run. The
// returned error is non-nil only when the context was cancelled.
func Dispatch(ctx context.Context, g Gateway, lim *resilience.Limiter, reqs []Request) ([]Record, []Request, error) {
	limits := g.Limits()
	size := limits.BatchSize
	if size <= 0 {
		size = 1
	}
	workers := limits.MaxConcurrentBatches
	if workers <= 0 {
		workers = 1
	}

	var mu sync.Mutex
	var records []Record
	var failed []Request

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)

	for start := 0; start < len(reqs); start += size {
		batch := reqs[start:min(start+size, len(reqs))]
		grp.Go(func() error {
			recs, err := Collect(gctx, g, lim, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Error("batch failed",
					zap.String("provider", g.Name()),
					zap.Int("contacts", len(batch)),
					zap.Error(err),
				)
				failed = append(failed, batch...)
				return nil
			}
			records = append(records, recs...)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return records, failed, err
	}
	return records, failed, nil
}

// MatchRecords pairs vendor records with the requests that produced them.
// Vendors do not preserve input order, so matching goes by normalized profile
// URL with a name fallback, never by array position. The result is keyed by
// the contact's row number; absent rows got no record back.
func MatchRecords(records []Record, reqs []Request) map[int]Record {
	byKey := make(map[string]Record, len(records))
	for _, rec := range records {
		if key := recordKey(rec); key != "" {
			byKey[key] = rec
		}
	}

	out := make(map[int]Record, len(reqs))
	for _, req := range reqs {
		rec, ok := byKey[filter.NormalizeProfileURL(req.Contact.LinkedInURL)]
		if !ok {
			rec, ok = byKey[nameKey(req.Contact.FirstName, req.Contact.LastName)]
		}
		if !ok {
			zap.L().Warn("no record returned for contact",
				zap.Int("row", req.Contact.Row),
				zap.String("name", req.Contact.FullName()),
			)
			continue
		}
		out[req.Contact.Row] = rec
	}
	return out
}

// MatchKey is the business key a contact is matched under.
func MatchKey(c model.Contact) string {
	if key := filter.NormalizeProfileURL(c.LinkedInURL); key != "" {
		return key
	}
	return nameKey(c.FirstName, c.LastName)
}

func recordKey(rec Record) string {
	url := rec.Str("url", "input_url", "linkedin_url", "linkedin", "profile_url")
	if url == "" {
		if input := rec.Sub("input"); input != nil {
			url = input.Str("url")
		}
	}
	if key := filter.NormalizeProfileURL(url); key != "" {
		return key
	}
	return nameKey(rec.Str("first_name"), rec.Str("last_name"))
}

func nameKey(first, last string) string {
	first = strings.ToLower(strings.TrimSpace(first))
	last = strings.ToLower(strings.TrimSpace(last))
	if first == "" && last == "" {
		return ""
	}
	return "name:" + first + "_" + last
}
