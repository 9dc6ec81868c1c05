package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
)

var crisisOnly = []safety.Category{safety.CategoryCrisis}

func ids(ranked []RankedResource) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Resource.ID
	}
	return out
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.NotEmpty(t, reg.Version)
	res, ok := reg.Get("us-988-lifeline")
	require.True(t, ok)
	assert.True(t, res.Availability.TwentyFourSeven)

	local, ok := reg.Get("us-ny-nyc-well")
	require.True(t, ok)
	assert.Equal(t, []string{"new york"}, local.Coverage.Cities)
}

func TestParseRegistry_Rejects(t *testing.T) {
	bad := map[string]string{
		"no version": `resources: []`,
		"duplicate id": `
version: v
resources:
  - {id: a, name: A, contact: {web: x}, coverage: {scope: international}}
  - {id: a, name: B, contact: {web: y}, coverage: {scope: international}}`,
		"no contact": `
version: v
resources:
  - {id: a, name: A, coverage: {scope: international}}`,
		"national without country": `
version: v
resources:
  - {id: a, name: A, contact: {web: x}, coverage: {scope: national}}`,
		"unknown category": `
version: v
resources:
  - {id: a, name: A, categories: [weather], contact: {web: x}, coverage: {scope: international}}`,
	}
	for name, doc := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidRegistry)
		})
	}
}

func TestMatch_UnknownLocationFallsBackToNationalSet(t *testing.T) {
	m := Matcher{}
	got := m.Match(DefaultRegistry(), crisisOnly, nil, MatchOptions{PrioritizeCrisis: true})

	require.NotEmpty(t, got)
	assert.Equal(t, "us-988-lifeline", got[0].Resource.ID)
	for _, r := range got {
		assert.NotEqual(t, ScopeLocal, r.GeoScope)
		assert.NotEqual(t, ScopeRegional, r.GeoScope)
		assert.False(t, r.Fallback)
	}
}

func TestMatch_LowConfidenceLocationIgnored(t *testing.T) {
	m := Matcher{}
	got := m.Match(DefaultRegistry(), crisisOnly, &Location{CountryCode: "GB", Confidence: 0.2}, MatchOptions{})
	assert.NotContains(t, ids(got), "gb-samaritans")
	assert.Contains(t, ids(got), "us-988-lifeline")
}

func TestMatch_MostSpecificWins(t *testing.T) {
	m := Matcher{}
	loc := &Location{CountryCode: "us", Region: "ny", City: "New York", Confidence: 0.9}
	got := m.Match(DefaultRegistry(), crisisOnly, loc, MatchOptions{PrioritizeCrisis: true})

	require.NotEmpty(t, got)
	assert.Equal(t, "us-ny-nyc-well", got[0].Resource.ID)
	assert.Equal(t, ScopeLocal, got[0].GeoScope)
}

func TestMatch_CountryFiltering(t *testing.T) {
	m := Matcher{}
	got := m.Match(DefaultRegistry(), crisisOnly, &Location{CountryCode: "GB", Confidence: 0.9}, MatchOptions{PrioritizeCrisis: true})

	require.NotEmpty(t, got)
	assert.Equal(t, "gb-samaritans", got[0].Resource.ID)
	assert.NotContains(t, ids(got), "us-988-lifeline")
}

func TestMatch_DiscreetPreferredForDV(t *testing.T) {
	m := Matcher{}
	got := m.Match(DefaultRegistry(), []safety.Category{safety.CategoryDomesticViolence}, nil,
		MatchOptions{PrioritizeCrisis: true, PreferDiscreet: true, Limit: 3})

	require.Len(t, got, 3)
	assert.Equal(t, "us-ndvh", got[0].Resource.ID)
	for _, r := range got {
		assert.True(t, r.Resource.Discreet, r.Resource.ID)
	}
}

func TestMatch_NeverEmpty(t *testing.T) {
	m := Matcher{}

	intl := m.Match(DefaultRegistry(), crisisOnly, &Location{CountryCode: "ZZ", Confidence: 1}, MatchOptions{})
	require.NotEmpty(t, intl)
	for _, r := range intl {
		assert.Equal(t, ScopeInternational, r.GeoScope)
	}

	none := m.Match(DefaultRegistry(), []safety.Category{safety.CategoryRelationshipCrisis},
		&Location{CountryCode: "ZZ", Confidence: 1}, MatchOptions{})
	require.NotEmpty(t, none)
	assert.True(t, none[0].Fallback)

	nilReg := m.Match(nil, crisisOnly, nil, MatchOptions{})
	require.NotEmpty(t, nilReg)
	assert.True(t, nilReg[0].Fallback)
	assert.Equal(t, "fallback-988", nilReg[0].Resource.ID)
}

func TestMatch_InactiveExcluded(t *testing.T) {
	reg, err := ParseRegistry([]byte(`
version: v
resources:
  - {id: closed, name: Closed, categories: [crisis], active: false, verified: true, contact: {phone: "1"}, coverage: {scope: national, country_codes: [US]}}
  - {id: open, name: Open, categories: [crisis], active: true, contact: {phone: "2"}, coverage: {scope: national, country_codes: [US]}}
`))
	require.NoError(t, err)
	got := Matcher{}.Match(reg, crisisOnly, nil, MatchOptions{})
	assert.Equal(t, []string{"open"}, ids(got))
}

func TestMatch_ScoreComponents(t *testing.T) {
	res := CrisisResource{
		Verified:          true,
		CrisisSpecific:    true,
		Availability:      Availability{TwentyFourSeven: true},
		ProfessionalStaff: true,
		Free:              true,
		Rating:            4,
		Discreet:          true,
	}
	assert.InDelta(t, 30+15+10+5+8, score(res, MatchOptions{}), 1e-9)
	assert.InDelta(t, 30+30+15+10+5+8+20, score(res, MatchOptions{PrioritizeCrisis: true, PreferDiscreet: true}), 1e-9)
}

func TestMatch_Limit(t *testing.T) {
	got := Matcher{}.Match(DefaultRegistry(), nil, nil, MatchOptions{Limit: 2})
	assert.Len(t, got, 2)
}
