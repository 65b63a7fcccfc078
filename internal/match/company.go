// Package match implements fuzzy company-name comparison for job change
// detection.
package match

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// parenRe strips trailing parenthetical notes, e.g. "Acme (formerly Apex)".
var parenRe = regexp.MustCompile(`\s+\(.*?\)$`)

// Matcher compares company names after normalization. Safe for concurrent use.
type Matcher struct {
	threshold  float64
	suffixes   []*regexp.Regexp
	aliasGroup map[string]int
}

// New builds a Matcher from cfg. Zero-value fields fall back to defaults.
func New(cfg Config) (*Matcher, error) {
	cfg = cfg.withDefaults()

	m := &Matcher{threshold: cfg.Threshold}
	for _, suffix := range cfg.Suffixes {
		words := strings.Fields(suffix)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		// ",? Inc." / " inc" etc, anchored at the end of the name.
		pattern := `(?i),?\s+` + strings.Join(words, `\.?\s+`) + `\.?$`
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "match: compile suffix %q", suffix)
		}
		m.suffixes = append(m.suffixes, re)
	}

	// Alias groups are keyed by normalized name so lookups happen after the
	// same normalization as the inputs.
	m.aliasGroup = make(map[string]int)
	group := 0
	for canonical, aliases := range cfg.Aliases {
		m.aliasGroup[m.Normalize(canonical)] = group
		for _, alias := range aliases {
			m.aliasGroup[m.Normalize(alias)] = group
		}
		group++
	}

	return m, nil
}

// Normalize lowercases, folds unicode compatibility forms, strips legal-entity
// suffixes and parenthetical notes, and collapses whitespace. Normalize is
// idempotent: it reapplies the suffix table until the name stops changing.
func (m *Matcher) Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(name)))

	for {
		prev := s
		for _, re := range m.suffixes {
			s = re.ReplaceAllString(s, "")
		}
		s = parenRe.ReplaceAllString(s, "")
		if s == prev {
			break
		}
	}

	return strings.Join(strings.Fields(s), " ")
}

// Compare reports whether a and b name the same company and how similar they
// are. Either input empty is never a match.
func (m *Matcher) Compare(a, b string) (same bool, similarity float64) {
	if a == "" || b == "" {
		return false, 0.0
	}

	na := m.Normalize(a)
	nb := m.Normalize(b)
	if na == "" || nb == "" {
		return false, 0.0
	}

	if na == nb {
		return true, 1.0
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true, 0.95
	}

	if ga, ok := m.aliasGroup[na]; ok {
		if gb, ok := m.aliasGroup[nb]; ok && ga == gb {
			return true, 0.98
		}
	}

	similarity = levenshtein.Similarity(na, nb, levenshtein.NewParams())
	return similarity >= m.threshold, similarity
}

// Threshold returns the similarity cutoff in use.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}
