// Package filter holds the skip rules and profile URL normalization used to
// decide which roster rows are actionable.
package filter

import (
	"regexp"
	"strings"
)

// Generic team/department account patterns; these are shared mailboxes, not
// people, and enriching them wastes provider credits.
var genericNameRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(BI|IT|HR|Sales|Marketing|Finance|Legal|Support|Admin|Operations)\s+(Team|Department|Group)$`),
	regexp.MustCompile(`(?i)^Team\s+\w+$`),
	regexp.MustCompile(`(?i)^\w+\s+Team$`),
	regexp.MustCompile(`(?i)^(Office|Executive|Administrative)\s+Assistant$`),
	regexp.MustCompile(`(?i)^(Company|Corporate|Business)\s+Account$`),
	regexp.MustCompile(`(?i)^Application\s+Integrations?$`),
	regexp.MustCompile(`(?i)^(General|Main)\s+Contact$`),
}

var genericEmailRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(info|contact|hello|support|admin|sales|marketing|team|general|noreply|no-reply)@`),
	regexp.MustCompile(`(?i)^(billing|accounts|hr|legal|press|media|partnerships)@`),
	regexp.MustCompile(`(?i)^(office|reception|inquiry|enquiry|feedback)@`),
	regexp.MustCompile(`(?i)^invitation@`),
}

var singleNameSkips = map[string]bool{
	"BI": true, "IT": true, "HR": true, "Sales": true,
	"Marketing": true, "Team": true, "Admin": true, "Support": true,
}

// SkipRule decides whether a contact is actionable.
type SkipRule struct {
	// InternalDomains lists email domains belonging to the operator's own
	// organization; those rows are never enriched.
	InternalDomains []string
}

// ShouldSkip reports whether the contact should be excluded from processing
// and, if so, the status string to record.
func (r SkipRule) ShouldSkip(email, firstName, lastName string) (bool, string) {
	if email == "" {
		return true, "Missing Email"
	}

	lower := strings.ToLower(strings.TrimSpace(email))
	for _, domain := range r.InternalDomains {
		if strings.HasSuffix(lower, "@"+strings.ToLower(domain)) {
			return true, "Skip - Internal (" + domain + ")"
		}
	}

	for _, re := range genericEmailRes {
		if re.MatchString(lower) {
			return true, "Skip - Generic Email Account"
		}
	}

	fullName := strings.TrimSpace(firstName + " " + lastName)
	if fullName != "" {
		for _, re := range genericNameRes {
			if re.MatchString(fullName) {
				return true, "Skip - Generic Team Account"
			}
		}
	}

	if firstName != "" && lastName == "" && singleNameSkips[strings.TrimSpace(firstName)] {
		return true, "Skip - Generic Team Account"
	}

	return false, ""
}

// Profile URL patterns, permissive enough for country subdomains
// (no.linkedin.com), missing protocols and URL-encoded usernames.
var profileURLRes = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?linkedin\.com/in/[\w%-]+`),
	regexp.MustCompile(`^https?://[a-z]{2}\.linkedin\.com/in/[\w%-]+`),
	regexp.MustCompile(`^(www\.)?linkedin\.com/in/[\w%-]+`),
	regexp.MustCompile(`^[a-z]{2}\.linkedin\.com/in/[\w%-]+`),
}

var countryDomainRe = regexp.MustCompile(`^[a-z]{2}\.linkedin\.com`)
var usernameRe = regexp.MustCompile(`(?i)linkedin\.com/in/([\w%-]+)`)

// IsValidProfileURL reports whether url points at a profile page.
func IsValidProfileURL(url string) bool {
	url = strings.ToLower(strings.TrimSpace(url))
	if url == "" {
		return false
	}
	for _, re := range profileURLRes {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// NormalizeProfileURL reduces a profile URL to a canonical matching key:
// lowercase, no protocol, no www, country subdomains folded into the main
// domain, no trailing slash. Providers echo URLs back in inconsistent shapes,
// so every cross-system match goes through this.
func NormalizeProfileURL(url string) string {
	if url == "" {
		return ""
	}
	url = strings.ToLower(strings.TrimSpace(url))
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "www.")
	url = countryDomainRe.ReplaceAllString(url, "linkedin.com")
	return strings.TrimRight(url, "/")
}

// ExtractUsername returns the profile slug, or "" if none is present.
func ExtractUsername(url string) string {
	m := usernameRe.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}
