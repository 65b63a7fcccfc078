package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobchange-cli/internal/checkpoint"
	"github.com/sells-group/jobchange-cli/internal/filter"
	"github.com/sells-group/jobchange-cli/internal/model"
	"github.com/sells-group/jobchange-cli/internal/provider"
)

// sourceLabels maps gateway names onto the labels used in status strings.
var sourceLabels = map[string]string{
	"leadmagic":     "LeadMagic",
	"bettercontact": "BetterContact",
	"brightdata":    "BrightData",
}

func sourceLabel(name string) string {
	if label, ok := sourceLabels[name]; ok {
		return label
	}
	return name
}

// classified pairs a contact with its profile snapshot and job-change verdict.
type classified struct {
	contact model.Contact
	profile model.Profile
	result  model.JobChangeResult
}

// processBatch runs one batch through profile resolution, job-change
// classification and the enrichment chains, and assembles the row updates.
// Rows whose provider batch failed are returned separately; they get no
// update this run and are queued for retry. The error is non-nil only on
// context cancellation.
func (p *Pipeline) processBatch(ctx context.Context, batch []model.Contact) ([]model.Update, []int, error) {
	p.setStage(checkpoint.StageProfiles)
	profiles, failedRows, err := p.resolveProfiles(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	failed := make(map[int]bool, len(failedRows))
	for _, row := range failedRows {
		failed[row] = true
	}

	results := p.classify(batch, profiles, failed)

	// Changers' enrichment asks about the company they moved to, not the one
	// on record.
	var changers []model.Contact
	for _, cl := range results {
		if cl.result.IsChange {
			changer := cl.contact
			changer.Company = cl.result.ObservedCompany
			changers = append(changers, changer)
		}
	}

	var needPhones []model.Contact
	for _, cl := range results {
		if cl.result.IsChange {
			continue // covered by the changer phone pass
		}
		c := cl.contact
		if c.Phone == "" && c.NewPhone == "" && filter.IsValidProfileURL(c.LinkedInURL) {
			needPhones = append(needPhones, c)
		}
	}

	var (
		phoneOutcomes        map[int]model.EnrichmentOutcome
		emailOutcomes        map[int]model.EnrichmentOutcome
		changerPhoneOutcomes map[int]model.EnrichmentOutcome
		phoneFailed          []model.Contact
		emailFailed          []model.Contact
		changerPhoneFailed   []model.Contact
	)

	p.setStage(checkpoint.StagePhone)
	phoneOutcomes, phoneFailed, err = p.phones.Resolve(ctx, needPhones)
	if err != nil {
		return nil, nil, err
	}

	// Email and phone enrichment for changers run concurrently; the chains
	// have independent limiters.
	p.setStage(checkpoint.StageEmail)
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		var err error
		emailOutcomes, emailFailed, err = p.emails.Resolve(gctx, changers)
		return err
	})
	grp.Go(func() error {
		var err error
		changerPhoneOutcomes, changerPhoneFailed, err = p.phones.Resolve(gctx, changers)
		return err
	})
	if err := grp.Wait(); err != nil {
		return nil, nil, err
	}

	// Changer phones win over the general pass: they were resolved against
	// the new employer.
	for row, out := range changerPhoneOutcomes {
		if out.Found {
			phoneOutcomes[row] = out
		}
	}

	for _, f := range [][]model.Contact{phoneFailed, emailFailed, changerPhoneFailed} {
		for _, c := range f {
			if !failed[c.Row] {
				failed[c.Row] = true
				failedRows = append(failedRows, c.Row)
			}
		}
	}

	p.countEnriched(phoneOutcomes, emailOutcomes)

	updates := make([]model.Update, 0, len(results))
	for _, cl := range results {
		if failed[cl.contact.Row] {
			continue
		}
		var phone, email *model.EnrichmentOutcome
		if out, ok := phoneOutcomes[cl.contact.Row]; ok {
			phone = &out
		}
		if out, ok := emailOutcomes[cl.contact.Row]; ok {
			email = &out
		}
		updates = append(updates, prepareUpdate(cl.contact, cl.profile, cl.result, phone, email))
	}

	sort.Ints(failedRows)
	return updates, failedRows, nil
}

// resolveProfiles fetches snapshots for every contact with a usable profile
// URL. Contacts without one get a synthetic error profile so classification
// and update assembly still see them.
func (p *Pipeline) resolveProfiles(ctx context.Context, batch []model.Contact) (map[int]model.Profile, []int, error) {
	profiles := make(map[int]model.Profile, len(batch))

	var reqs []provider.Request
	for _, c := range batch {
		if !filter.IsValidProfileURL(c.LinkedInURL) {
			profiles[c.Row] = model.Profile{Err: "No LinkedIn URL"}
			continue
		}
		reqs = append(reqs, provider.Request{Contact: c, Kind: provider.KindProfile})
	}
	if len(reqs) == 0 {
		return profiles, nil, nil
	}

	records, failedReqs, err := provider.Dispatch(ctx, p.profiles, p.profLim, reqs)
	if err != nil {
		return nil, nil, err
	}

	failedRows := make([]int, 0, len(failedReqs))
	failed := make(map[int]bool, len(failedReqs))
	for _, f := range failedReqs {
		failedRows = append(failedRows, f.Contact.Row)
		failed[f.Contact.Row] = true
	}

	matched := provider.MatchRecords(records, reqs)
	for _, req := range reqs {
		row := req.Contact.Row
		if failed[row] {
			continue
		}
		rec, ok := matched[row]
		if !ok {
			zap.L().Warn("profile not returned for contact",
				zap.Int("row", row),
				zap.String("url", req.Contact.LinkedInURL),
			)
			profiles[row] = model.Profile{URL: req.Contact.LinkedInURL, Err: "Profile not returned"}
			continue
		}
		profiles[row] = p.profiles.ParseProfile(rec)
	}
	return profiles, failedRows, nil
}

// classify runs job-change detection over the batch and keeps the stats
// counters current.
func (p *Pipeline) classify(batch []model.Contact, profiles map[int]model.Profile, failed map[int]bool) []classified {
	results := make([]classified, 0, len(batch))

	for _, c := range batch {
		if failed[c.Row] {
			continue
		}
		pr := profiles[c.Row]

		var res model.JobChangeResult
		if !pr.OK() {
			reason := pr.Err
			if pr.Private {
				reason = "Profile Private"
			}
			res = model.JobChangeResult{RecordedCompany: c.Company, Reason: reason}
		} else {
			res = p.detector.Detect(pr.CurrentCompany, c.Company, pr.CurrentTitle, c.Title)
			if res.IsChange && p.detector.StillAtRecorded(c.Company, pr.Experience) {
				res.IsChange = false
				res.Reason = "still listed at recorded company"
			}
		}

		isChange := res.IsChange
		p.cp.Update(func(cp *checkpoint.Checkpoint) {
			switch {
			case pr.Private:
				cp.Stats.ProfilesPrivate++
			case pr.Err != "":
				cp.Stats.ProfilesNotFound++
			default:
				cp.Stats.ProfilesValidated++
			}
			if isChange {
				cp.Stats.JobChangers++
			}
		})

		if res.IsChange {
			zap.L().Info("job change detected",
				zap.Int("row", c.Row),
				zap.String("name", c.FullName()),
				zap.String("from", res.RecordedCompany),
				zap.String("to", res.ObservedCompany),
				zap.String("new_title", res.ObservedTitle),
			)
		}

		results = append(results, classified{contact: c, profile: pr, result: res})
	}
	return results
}

func (p *Pipeline) countEnriched(phoneOutcomes, emailOutcomes map[int]model.EnrichmentOutcome) {
	phonesFound, emailsFound := 0, 0
	for _, out := range phoneOutcomes {
		if out.Found {
			phonesFound++
		}
	}
	for _, out := range emailOutcomes {
		if out.Found {
			emailsFound++
		}
	}
	p.cp.Update(func(cp *checkpoint.Checkpoint) {
		cp.Stats.PhonesEnriched += phonesFound
		cp.Stats.EmailsEnriched += emailsFound
	})
}

// prepareUpdate assembles the row update for one classified contact. The
// status strings are load-bearing: downstream sheet filters and the reenrich
// pass key off them.
func prepareUpdate(contact model.Contact, pr model.Profile, res model.JobChangeResult, phone, email *model.EnrichmentOutcome) model.Update {
	today := time.Now().Format("2006-01-02")
	hasValidURL := filter.IsValidProfileURL(contact.LinkedInURL)

	var u model.Update
	u.Row = contact.Row
	u.Set(model.FieldLastProcessedDate, today)
	u.Set(model.FieldValidationDate, today)

	switch {
	case pr.Private:
		u.Set(model.FieldEnrichmentStatus, "Profile Private")
	case pr.Err != "":
		lower := strings.ToLower(pr.Err)
		switch {
		case strings.Contains(lower, "not found"):
			u.Set(model.FieldEnrichmentStatus, "LinkedIn Not Found")
		case strings.Contains(lower, "retry"):
			u.Set(model.FieldEnrichmentStatus, "Profile Data Incomplete - Retry")
		default:
			msg := pr.Err
			if len(msg) > 50 {
				msg = msg[:50]
			}
			u.Set(model.FieldEnrichmentStatus, "Error: "+msg)
		}
	case hasValidURL:
		u.Set(model.FieldConfirmedLinkedIn, "Yes")
		u.Set(model.FieldEnrichmentStatus, "LinkedIn Validated")
	default:
		// A readable profile without a stored URL means the record was
		// matched on name alone; do not confirm it.
		u.Set(model.FieldConfirmedLinkedIn, "No")
		u.Set(model.FieldEnrichmentStatus, "No LinkedIn URL")
	}

	if res.IsChange && hasValidURL {
		u.Set(model.FieldJobChanged, "Yes")
		u.Set(model.FieldNewCompany, res.ObservedCompany)
		u.Set(model.FieldNewTitle, res.ObservedTitle)
	} else {
		u.Set(model.FieldJobChanged, "No")
		if res.IsChange && !hasValidURL {
			zap.L().Warn("job change detected without a valid profile URL, ignoring",
				zap.Int("row", contact.Row))
		}
	}

	if phone != nil && phone.Found {
		u.Set(model.FieldNewPhone, phone.Value)
		u.Set(model.FieldEnrichmentStatus, "Phone Found ("+sourceLabel(phone.Source)+")")
	}

	if email != nil && email.Found {
		u.Set(model.FieldNewEmail, email.Value)
		u.Set(model.FieldEnrichmentStatus, "Email Found")
	} else if res.IsChange && email != nil {
		// A changer the email chain came up empty on; a found phone status
		// outranks the miss.
		if !strings.HasPrefix(u.Fields[model.FieldEnrichmentStatus], "Phone") {
			u.Set(model.FieldEnrichmentStatus, "Email Not Found")
		}
	}

	return u
}
