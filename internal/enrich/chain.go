// Package enrich resolves contact data points through an ordered provider
// chain: each provider sees only the contacts every earlier provider came up
// empty on.
package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/jobchange-cli/internal/model"
	"github.com/sells-group/jobchange-cli/internal/provider"
	"github.com/sells-group/jobchange-cli/internal/resilience"
)

// Step is one provider in the chain with its traffic limiter.
type Step struct {
	Gateway provider.Enricher
	Limiter *resilience.Limiter
}

// Chain is an ordered fallback sequence for one capability.
type Chain struct {
	kind  provider.Kind
	steps []Step
}

// NewChain builds a chain. Steps whose gateway does not support the
// capability are dropped up front.
func NewChain(kind provider.Kind, steps ...Step) *Chain {
	usable := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s.Gateway.Supports(kind) {
			usable = append(usable, s)
		} else {
			zap.L().Warn("provider does not support capability, skipping",
				zap.String("provider", s.Gateway.Name()),
				zap.String("kind", string(kind)),
			)
		}
	}
	return &Chain{kind: kind, steps: usable}
}

// Kind returns the capability this chain resolves.
func (c *Chain) Kind() provider.Kind { return c.kind }

// Resolve runs the contacts through the chain. The outcome map is keyed by
// row number and holds an entry for every contact that completed the chain,
// found or not. Contacts whose batch failed at some step are returned
// separately; they were never definitively answered and must not be written
// as not-found. The error is non-nil only on context cancellation.
func (c *Chain) Resolve(ctx context.Context, contacts []model.Contact) (map[int]model.EnrichmentOutcome, []model.Contact, error) {
	outcomes := make(map[int]model.EnrichmentOutcome, len(contacts))
	remaining := contacts
	var failed []model.Contact

	for _, step := range c.steps {
		if len(remaining) == 0 {
			break
		}

		reqs := make([]provider.Request, 0, len(remaining))
		for _, contact := range remaining {
			reqs = append(reqs, provider.Request{Contact: contact, Kind: c.kind})
		}

		records, failedReqs, err := provider.Dispatch(ctx, step.Gateway, step.Limiter, reqs)
		if err != nil {
			return outcomes, failed, err
		}

		failedRows := make(map[int]bool, len(failedReqs))
		for _, f := range failedReqs {
			failedRows[f.Contact.Row] = true
			failed = append(failed, f.Contact)
		}

		matched := provider.MatchRecords(records, reqs)

		var next []model.Contact
		found := 0
		for _, contact := range remaining {
			if failedRows[contact.Row] {
				continue
			}
			rec, ok := matched[contact.Row]
			if ok {
				out := step.Gateway.ParseOutcome(rec, c.kind)
				if out.Found {
					out.Key = provider.MatchKey(contact)
					outcomes[contact.Row] = out
					found++
					continue
				}
			}
			next = append(next, contact)
		}

		zap.L().Info("chain step complete",
			zap.String("provider", step.Gateway.Name()),
			zap.String("kind", string(c.kind)),
			zap.Int("asked", len(remaining)),
			zap.Int("found", found),
			zap.Int("failed", len(failedReqs)),
		)
		remaining = next
	}

	// Everything left was asked everywhere and found nowhere.
	for _, contact := range remaining {
		outcomes[contact.Row] = model.EnrichmentOutcome{
			Key:   provider.MatchKey(contact),
			Found: false,
		}
	}

	return outcomes, failed, nil
}
