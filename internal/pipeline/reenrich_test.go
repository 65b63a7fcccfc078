package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobchange-cli/internal/model"
	"github.com/sells-group/jobchange-cli/internal/provider"
)

func TestReenrichExisting(t *testing.T) {
	store := &fakeStore{contacts: []model.Contact{
		// Prior job changer still missing a new email.
		{Row: 2, FirstName: "Sam", LastName: "Lee", Company: "Initech",
			JobChanged: "Yes", NewCompany: "NewCo Analytics", Phone: "+15550109999",
			LinkedInURL: "https://linkedin.com/in/sam-lee"},
		// Contact missing any phone.
		{Row: 3, FirstName: "Jane", LastName: "Doe", Company: "Globex",
			LinkedInURL: "https://linkedin.com/in/jane-doe"},
		// Already has a phone, left alone.
		{Row: 4, FirstName: "Ana", LastName: "Kim", Company: "Globex",
			Phone: "+15550100000", LinkedInURL: "https://linkedin.com/in/ana-kim"},
	}}

	phone := newFakeEnricher("leadmagic", provider.KindPhone, map[string]string{
		"linkedin.com/in/jane-doe": "+15550102030",
		"linkedin.com/in/sam-lee":  "+15550104040",
	})
	email := newFakeEnricher("bettercontact", provider.KindEmail, map[string]string{
		"linkedin.com/in/sam-lee": "sam@newco.io",
	})

	fx := newFixture(t, store, newFakeProfiles(), phone, email, Options{StartRow: 5})

	require.NoError(t, fx.pipe.ReenrichExisting(context.Background()))

	fields := store.fields()

	require.Contains(t, fields, 2)
	assert.Equal(t, "sam@newco.io", fields[2][model.FieldNewEmail])
	assert.Equal(t, "Email Found (BetterContact)", fields[2][model.FieldEnrichmentStatus])

	// The email chain asked about the company Sam moved to.
	assert.Equal(t, "NewCo Analytics", email.askedCompany("https://linkedin.com/in/sam-lee"))

	require.Contains(t, fields, 3)
	assert.Equal(t, "+15550102030", fields[3][model.FieldNewPhone])
	assert.Equal(t, "Phone Found (LeadMagic)", fields[3][model.FieldEnrichmentStatus])

	assert.NotContains(t, fields, 4, "contacts with a phone on file are not re-enriched")
}

func TestReenrichExistingNothingBelowRange(t *testing.T) {
	store := &fakeStore{contacts: rosterContacts()}
	phone, email := rosterEnrichers()
	fx := newFixture(t, store, newFakeProfiles(), phone, email, Options{StartRow: 2})

	require.NoError(t, fx.pipe.ReenrichExisting(context.Background()))
	assert.Empty(t, store.applied)
}
