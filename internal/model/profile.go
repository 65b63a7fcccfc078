package model

// Experience is one employment-history entry from a profile snapshot.
type Experience struct {
	Company   string `json:"company,omitempty"`
	Title     string `json:"title,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Current   bool   `json:"current"`
}

// Profile is the parsed result of one profile lookup attempt. Immutable once
// constructed; a non-empty Err means the lookup did not produce usable data.
type Profile struct {
	URL            string       `json:"url"`
	Name           string       `json:"name,omitempty"`
	Headline       string       `json:"headline,omitempty"`
	CurrentCompany string       `json:"current_company,omitempty"`
	CurrentTitle   string       `json:"current_title,omitempty"`
	Location       string       `json:"location,omitempty"`
	Experience     []Experience `json:"experience,omitempty"`
	Private        bool         `json:"private"`
	Err            string       `json:"error,omitempty"`
}

// OK reports whether the lookup produced a readable profile.
func (p Profile) OK() bool {
	return p.Err == "" && !p.Private
}
