package resources

import (
	"sort"
	"strings"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
)

// Location is the caller's best guess of where the user is.
type Location struct {
	CountryCode string  `json:"country_code"`
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	Confidence  float64 `json:"confidence"`
}

type MatchOptions struct {
	PrioritizeCrisis bool `json:"prioritize_crisis"`
	// PreferDiscreet favours resources that can be used without being
	// overheard or noticed, e.g. chat and text lines.
	PreferDiscreet bool `json:"prefer_discreet"`
	Limit          int  `json:"limit"`
}

// RankedResource is a resource with its match score for one request.
type RankedResource struct {
	Resource CrisisResource `json:"resource"`
	Score    float64        `json:"score"`
	GeoScope Scope          `json:"geo_scope"`
	Fallback bool           `json:"fallback,omitempty"`
}

// Scoring weights.
const (
	scoreVerified       = 30.0
	scoreCrisisSpecific = 30.0
	scoreAlwaysOpen     = 15.0
	scoreProfessional   = 10.0
	scoreFree           = 5.0
	scorePerRatingStar  = 2.0
	scoreDiscreet       = 20.0

	geoLocal         = 20.0
	geoRegional      = 15.0
	geoNational      = 10.0
	geoInternational = 5.0
)

const (
	DefaultCountry               = "US"
	DefaultMinLocationConfidence = 0.5
)

// Matcher ranks registry resources. The zero value uses DefaultCountry and
// DefaultMinLocationConfidence.
type Matcher struct {
	DefaultCountry        string
	MinLocationConfidence float64
}

// resolve returns the location used for geographic matching. An unknown or
// low-confidence location degrades to the default country at national scope.
func (m Matcher) resolve(loc *Location) Location {
	country := m.DefaultCountry
	if country == "" {
		country = DefaultCountry
	}
	minConf := m.MinLocationConfidence
	if minConf <= 0 {
		minConf = DefaultMinLocationConfidence
	}
	if loc == nil || strings.TrimSpace(loc.CountryCode) == "" || loc.Confidence < minConf {
		return Location{CountryCode: country}
	}
	return Location{
		CountryCode: strings.ToUpper(strings.TrimSpace(loc.CountryCode)),
		Region:      strings.ToUpper(strings.TrimSpace(loc.Region)),
		City:        strings.ToLower(strings.TrimSpace(loc.City)),
		Confidence:  loc.Confidence,
	}
}

// Match returns active resources serving categories near loc, best first.
// The result is never empty: when nothing in the registry applies, the
// hardcoded fallback set is ranked instead.
func (m Matcher) Match(reg *Registry, categories []safety.Category, loc *Location, opts MatchOptions) []RankedResource {
	where := m.resolve(loc)

	var ranked []RankedResource
	if reg != nil {
		ranked = rank(reg.Resources, categories, where, opts, false)
	}
	if len(ranked) == 0 {
		ranked = rank(FallbackResources(), categories, where, opts, true)
	}
	if len(ranked) == 0 {
		// The fallback set does not cover the requested categories or
		// country; return it whole rather than nothing.
		ranked = rank(FallbackResources(), nil, Location{}, opts, true)
	}
	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked
}

func rank(resources []CrisisResource, categories []safety.Category, where Location, opts MatchOptions, fallback bool) []RankedResource {
	var out []RankedResource
	for _, res := range resources {
		if !res.Active || !res.Serves(categories) {
			continue
		}
		scope, bonus, ok := geoMatch(res.Coverage, where)
		if !ok {
			continue
		}
		out = append(out, RankedResource{
			Resource: res,
			Score:    score(res, opts) + bonus,
			GeoScope: scope,
			Fallback: fallback,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Resource.ID < out[j].Resource.ID
	})
	return out
}

func score(res CrisisResource, opts MatchOptions) float64 {
	var s float64
	if res.Verified {
		s += scoreVerified
	}
	if res.CrisisSpecific && opts.PrioritizeCrisis {
		s += scoreCrisisSpecific
	}
	if res.Availability.TwentyFourSeven {
		s += scoreAlwaysOpen
	}
	if res.ProfessionalStaff {
		s += scoreProfessional
	}
	if res.Free {
		s += scoreFree
	}
	s += res.Rating * scorePerRatingStar
	if res.Discreet && opts.PreferDiscreet {
		s += scoreDiscreet
	}
	return s
}

// geoMatch reports whether coverage applies to where and the bonus for the
// most specific matching scope. An empty country in where matches anything.
func geoMatch(cov Coverage, where Location) (Scope, float64, bool) {
	if cov.Scope == ScopeInternational {
		return ScopeInternational, geoInternational, true
	}
	if where.CountryCode != "" && !contains(cov.CountryCodes, where.CountryCode) {
		return "", 0, false
	}
	switch cov.Scope {
	case ScopeNational:
		return ScopeNational, geoNational, true
	case ScopeRegional:
		if where.CountryCode == "" || (where.Region != "" && contains(cov.RegionCodes, where.Region)) {
			return ScopeRegional, geoRegional, true
		}
	case ScopeLocal:
		if where.CountryCode == "" || (where.City != "" && contains(cov.Cities, where.City)) {
			return ScopeLocal, geoLocal, true
		}
	}
	return "", 0, false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
