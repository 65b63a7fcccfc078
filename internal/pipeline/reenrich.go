package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/jobchange-cli/internal/checkpoint"
	"github.com/sells-group/jobchange-cli/internal/filter"
	"github.com/sells-group/jobchange-cli/internal/model"
)

// ReenrichExisting backfills rows a previous scan already classified: job
// changers still missing a new email, and any contact still missing a phone.
// It covers rows 2 through ReenrichEndRow (default: just below the main
// scan's start row) so it never overlaps the scan itself.
func (p *Pipeline) ReenrichExisting(ctx context.Context) error {
	endRow := p.opts.ReenrichEndRow
	if endRow <= 0 {
		endRow = p.opts.StartRow - 1
	}
	if endRow < 2 {
		zap.L().Warn("no rows below the scan range, skipping re-enrichment")
		return nil
	}

	log := zap.L().With(zap.Int("end_row", endRow))
	log.Info("re-enriching previously classified rows")

	all, err := p.store.Load(ctx)
	if err != nil {
		return err
	}
	contacts := trimToRange(all, 2, endRow)

	var needEmail, needPhone []model.Contact
	for _, c := range contacts {
		if !filter.IsValidProfileURL(c.LinkedInURL) {
			continue
		}
		if strings.EqualFold(c.JobChanged, "yes") && c.NewEmail == "" {
			// The email chain must ask about the employer they moved to.
			changer := c
			changer.Company = c.NewCompany
			needEmail = append(needEmail, changer)
		}
		if c.Phone == "" && c.NewPhone == "" {
			needPhone = append(needPhone, c)
		}
	}

	log.Info("re-enrichment candidates",
		zap.Int("job_changers_missing_email", len(needEmail)),
		zap.Int("contacts_missing_phone", len(needPhone)),
	)
	if len(needEmail) == 0 && len(needPhone) == 0 {
		return nil
	}

	var updates []model.Update
	emailsFound, phonesFound := 0, 0

	if len(needEmail) > 0 {
		outcomes, failed, err := p.emails.Resolve(ctx, needEmail)
		if err != nil {
			return err
		}
		for _, c := range failed {
			p.cp.AddFailedRow(c.Row)
		}
		for row, out := range outcomes {
			if !out.Found {
				continue
			}
			var u model.Update
			u.Row = row
			u.Set(model.FieldNewEmail, out.Value)
			u.Set(model.FieldEnrichmentStatus, "Email Found ("+sourceLabel(out.Source)+")")
			updates = append(updates, u)
			emailsFound++
		}
	}

	if len(needPhone) > 0 {
		outcomes, failed, err := p.phones.Resolve(ctx, needPhone)
		if err != nil {
			return err
		}
		for _, c := range failed {
			p.cp.AddFailedRow(c.Row)
		}
		for row, out := range outcomes {
			if !out.Found {
				continue
			}
			var u model.Update
			u.Row = row
			u.Set(model.FieldNewPhone, out.Value)
			u.Set(model.FieldEnrichmentStatus, "Phone Found ("+sourceLabel(out.Source)+")")
			updates = append(updates, u)
			phonesFound++
		}
	}

	if err := p.persist(ctx, updates); err != nil {
		return err
	}

	p.cp.Update(func(cp *checkpoint.Checkpoint) {
		cp.Stats.EmailsEnriched += emailsFound
		cp.Stats.PhonesEnriched += phonesFound
	})

	log.Info("re-enrichment complete",
		zap.Int("emails_found", emailsFound),
		zap.Int("of_emails_needed", len(needEmail)),
		zap.Int("phones_found", phonesFound),
		zap.Int("of_phones_needed", len(needPhone)),
	)
	return nil
}
