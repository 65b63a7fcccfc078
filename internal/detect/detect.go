// Package detect classifies company pairs as job changes.
package detect

import (
	"fmt"

	"github.com/sells-group/jobchange-cli/internal/match"
	"github.com/sells-group/jobchange-cli/internal/model"
)

// Detector decides whether an observed employer differs from the recorded one.
type Detector struct {
	matcher *match.Matcher
}

// New creates a Detector on top of the given matcher.
func New(m *match.Matcher) *Detector {
	return &Detector{matcher: m}
}

// Detect compares the company observed on the contact's profile against the
// company on record.
//
// The confidence formula is deliberately asymmetric: when the companies match,
// confidence is the similarity score; when they differ, it is 1 - similarity,
// so more dissimilar names yield higher confidence in a genuine change.
func (d *Detector) Detect(observedCompany, recordedCompany, observedTitle, recordedTitle string) model.JobChangeResult {
	_ = recordedTitle // titles are carried through but never drive the decision

	if observedCompany == "" {
		return model.JobChangeResult{
			IsChange:        false,
			Confidence:      0.0,
			RecordedCompany: recordedCompany,
			ObservedTitle:   observedTitle,
			Reason:          "profile company not available",
		}
	}

	if recordedCompany == "" {
		return model.JobChangeResult{
			IsChange:        false,
			Confidence:      0.0,
			ObservedCompany: observedCompany,
			ObservedTitle:   observedTitle,
			Reason:          "no company on record",
		}
	}

	same, similarity := d.matcher.Compare(observedCompany, recordedCompany)

	if same {
		return model.JobChangeResult{
			IsChange:        false,
			Confidence:      similarity,
			ObservedCompany: observedCompany,
			RecordedCompany: recordedCompany,
			ObservedTitle:   observedTitle,
			Reason:          fmt.Sprintf("same company (similarity %.0f%%)", similarity*100),
		}
	}

	return model.JobChangeResult{
		IsChange:        true,
		Confidence:      1.0 - similarity,
		ObservedCompany: observedCompany,
		RecordedCompany: recordedCompany,
		ObservedTitle:   observedTitle,
		Reason:          fmt.Sprintf("company changed (similarity %.0f%%)", similarity*100),
	}
}

// StillAtRecorded reports whether any current experience entry matches the
// recorded company, which indicates the profile's headline company is a side
// venture rather than a departure.
func (d *Detector) StillAtRecorded(recordedCompany string, experience []model.Experience) bool {
	if recordedCompany == "" {
		return false
	}
	for _, exp := range experience {
		if !exp.Current {
			continue
		}
		if same, _ := d.matcher.Compare(exp.Company, recordedCompany); same {
			return true
		}
	}
	return false
}
