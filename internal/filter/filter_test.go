package filter

import "testing"

func TestShouldSkip(t *testing.T) {
	rule := SkipRule{InternalDomains: []string{"sellsadvisors.com"}}

	cases := []struct {
		email, first, last string
		wantSkip           bool
		wantReason         string
	}{
		{"", "Jane", "Doe", true, "Missing Email"},
		{"jane@globex.com", "Jane", "Doe", false, ""},
		{"info@globex.com", "Jane", "Doe", true, "Skip - Generic Email Account"},
		{"billing@globex.com", "", "", true, "Skip - Generic Email Account"},
		{"blake@sellsadvisors.com", "Blake", "S", true, "Skip - Internal (sellsadvisors.com)"},
		{"team@ex.com", "Sales", "Team", true, "Skip - Generic Email Account"},
		{"jd@globex.com", "IT", "Department", true, "Skip - Generic Team Account"},
		{"jd@globex.com", "IT", "", true, "Skip - Generic Team Account"},
		{"jd@globex.com", "Marketing", "Team", true, "Skip - Generic Team Account"},
	}
	for _, tt := range cases {
		skip, reason := rule.ShouldSkip(tt.email, tt.first, tt.last)
		if skip != tt.wantSkip || reason != tt.wantReason {
			t.Errorf("ShouldSkip(%q, %q, %q) = (%v, %q), want (%v, %q)",
				tt.email, tt.first, tt.last, skip, reason, tt.wantSkip, tt.wantReason)
		}
	}
}

func TestIsValidProfileURL(t *testing.T) {
	valid := []string{
		"https://www.linkedin.com/in/jane-doe",
		"https://linkedin.com/in/jane-doe/",
		"http://no.linkedin.com/in/jdoe",
		"linkedin.com/in/jane%20doe",
		"www.linkedin.com/in/jdoe-123",
	}
	for _, u := range valid {
		if !IsValidProfileURL(u) {
			t.Errorf("IsValidProfileURL(%q) = false, want true", u)
		}
	}

	invalid := []string{
		"",
		"https://linkedin.com/company/globex",
		"https://example.com/in/jane",
		"not a url",
	}
	for _, u := range invalid {
		if IsValidProfileURL(u) {
			t.Errorf("IsValidProfileURL(%q) = true, want false", u)
		}
	}
}

func TestNormalizeProfileURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.linkedin.com/in/Jane-Doe/", "linkedin.com/in/jane-doe"},
		{"http://linkedin.com/in/jdoe", "linkedin.com/in/jdoe"},
		{"no.linkedin.com/in/jdoe", "linkedin.com/in/jdoe"},
		{"https://za.linkedin.com/in/jdoe/", "linkedin.com/in/jdoe"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeProfileURL(tt.in); got != tt.want {
			t.Errorf("NormalizeProfileURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	// All variants of the same profile collapse to one key.
	variants := []string{
		"https://www.linkedin.com/in/jdoe",
		"http://no.linkedin.com/in/jdoe/",
		"linkedin.com/in/jdoe",
	}
	first := NormalizeProfileURL(variants[0])
	for _, v := range variants[1:] {
		if NormalizeProfileURL(v) != first {
			t.Errorf("variant %q did not normalize to %q", v, first)
		}
	}
}

func TestExtractUsername(t *testing.T) {
	if got := ExtractUsername("https://www.linkedin.com/in/jane-doe/"); got != "jane-doe" {
		t.Errorf("ExtractUsername = %q, want jane-doe", got)
	}
	if got := ExtractUsername("https://example.com"); got != "" {
		t.Errorf("ExtractUsername = %q, want empty", got)
	}
}
