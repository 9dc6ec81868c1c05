// Package resources holds the curated crisis resource registry and the
// matcher that ranks resources for a risk assessment and a location.
package resources

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
)

//go:embed registry.yaml
var defaultRegistryYAML []byte

var ErrInvalidRegistry = errors.New("invalid resource registry")

// Scope is the geographic reach of a resource.
type Scope string

const (
	ScopeInternational Scope = "international"
	ScopeNational      Scope = "national"
	ScopeRegional      Scope = "regional"
	ScopeLocal         Scope = "local"
)

func (s Scope) valid() bool {
	switch s {
	case ScopeInternational, ScopeNational, ScopeRegional, ScopeLocal:
		return true
	}
	return false
}

type Contact struct {
	Phone string `json:"phone,omitempty" yaml:"phone"`
	Text  string `json:"text,omitempty" yaml:"text"`
	Chat  string `json:"chat,omitempty" yaml:"chat"`
	Web   string `json:"web,omitempty" yaml:"web"`
}

func (c Contact) empty() bool {
	return c.Phone == "" && c.Text == "" && c.Chat == "" && c.Web == ""
}

type Coverage struct {
	Scope        Scope    `json:"scope" yaml:"scope"`
	CountryCodes []string `json:"country_codes,omitempty" yaml:"country_codes"`
	RegionCodes  []string `json:"region_codes,omitempty" yaml:"region_codes"`
	Cities       []string `json:"cities,omitempty" yaml:"cities"`
}

type Availability struct {
	TwentyFourSeven bool     `json:"twenty_four_seven" yaml:"twenty_four_seven"`
	Hours           string   `json:"hours,omitempty" yaml:"hours"`
	Languages       []string `json:"languages,omitempty" yaml:"languages"`
}

// CrisisResource is a curated hotline, text line or service.
type CrisisResource struct {
	ID                string            `json:"id" yaml:"id"`
	Name              string            `json:"name" yaml:"name"`
	Description       string            `json:"description" yaml:"description"`
	Categories        []safety.Category `json:"categories" yaml:"categories"`
	Contact           Contact           `json:"contact" yaml:"contact"`
	Coverage          Coverage          `json:"coverage" yaml:"coverage"`
	Availability      Availability      `json:"availability" yaml:"availability"`
	Verified          bool              `json:"verified" yaml:"verified"`
	Active            bool              `json:"active" yaml:"active"`
	Discreet          bool              `json:"discreet" yaml:"discreet"`
	CrisisSpecific    bool              `json:"crisis_specific" yaml:"crisis_specific"`
	ProfessionalStaff bool              `json:"professional_staff" yaml:"professional_staff"`
	Free              bool              `json:"free" yaml:"free"`
	Rating            float64           `json:"rating" yaml:"rating"`
}

// Serves reports whether the resource covers any of the given categories.
// An empty filter matches everything.
func (r CrisisResource) Serves(categories []safety.Category) bool {
	if len(categories) == 0 {
		return true
	}
	for _, want := range categories {
		for _, have := range r.Categories {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Registry is an immutable, versioned set of resources.
type Registry struct {
	Version   string           `yaml:"version"`
	Resources []CrisisResource `yaml:"resources"`
}

// DefaultRegistry returns the registry compiled into the binary.
func DefaultRegistry() *Registry {
	reg, err := ParseRegistry(defaultRegistryYAML)
	if err != nil {
		panic(fmt.Sprintf("resources: embedded registry: %v", err))
	}
	return reg
}

// LoadRegistry reads and validates a registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resource registry: %w", err)
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	if r.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidRegistry)
	}
	seen := make(map[string]bool, len(r.Resources))
	for i := range r.Resources {
		res := &r.Resources[i]
		if res.ID == "" || res.Name == "" {
			return fmt.Errorf("%w: resource %d needs id and name", ErrInvalidRegistry, i)
		}
		if seen[res.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidRegistry, res.ID)
		}
		seen[res.ID] = true
		if !res.Coverage.Scope.valid() {
			return fmt.Errorf("%w: %s: unknown scope %q", ErrInvalidRegistry, res.ID, res.Coverage.Scope)
		}
		if res.Coverage.Scope != ScopeInternational && len(res.Coverage.CountryCodes) == 0 {
			return fmt.Errorf("%w: %s: %s resource needs country codes", ErrInvalidRegistry, res.ID, res.Coverage.Scope)
		}
		if res.Contact.empty() {
			return fmt.Errorf("%w: %s: no contact channel", ErrInvalidRegistry, res.ID)
		}
		if res.Rating < 0 || res.Rating > 5 {
			return fmt.Errorf("%w: %s: rating outside 0-5", ErrInvalidRegistry, res.ID)
		}
		for _, c := range res.Categories {
			if !c.Valid() {
				return fmt.Errorf("%w: %s: unknown category %q", ErrInvalidRegistry, res.ID, c)
			}
		}
		res.Coverage.CountryCodes = upperAll(res.Coverage.CountryCodes)
		res.Coverage.RegionCodes = upperAll(res.Coverage.RegionCodes)
		for j, city := range res.Coverage.Cities {
			res.Coverage.Cities[j] = strings.ToLower(strings.TrimSpace(city))
		}
	}
	return nil
}

// Get returns the resource with the given id.
func (r *Registry) Get(id string) (CrisisResource, bool) {
	for _, res := range r.Resources {
		if res.ID == id {
			return res, true
		}
	}
	return CrisisResource{}, false
}

func upperAll(in []string) []string {
	for i, s := range in {
		in[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return in
}

// FallbackResources is the minimal hardcoded set returned when the
// registry cannot be read or nothing else matches.
func FallbackResources() []CrisisResource {
	return []CrisisResource{
		{
			ID:             "fallback-988",
			Name:           "988 Suicide & Crisis Lifeline",
			Description:    "Call or text 988 for free, confidential crisis support.",
			Categories:     []safety.Category{safety.CategoryCrisis, safety.CategoryEmotionalDistress},
			Contact:        Contact{Phone: "988", Text: "988", Web: "https://988lifeline.org"},
			Coverage:       Coverage{Scope: ScopeNational, CountryCodes: []string{"US"}},
			Availability:   Availability{TwentyFourSeven: true},
			Verified:       true,
			Active:         true,
			CrisisSpecific: true,
			Free:           true,
		},
		{
			ID:             "fallback-ndvh",
			Name:           "National Domestic Violence Hotline",
			Description:    "Confidential support for anyone affected by abuse.",
			Categories:     []safety.Category{safety.CategoryDomesticViolence},
			Contact:        Contact{Phone: "1-800-799-7233", Text: "START to 88788", Web: "https://www.thehotline.org"},
			Coverage:       Coverage{Scope: ScopeNational, CountryCodes: []string{"US"}},
			Availability:   Availability{TwentyFourSeven: true},
			Verified:       true,
			Active:         true,
			Discreet:       true,
			CrisisSpecific: true,
			Free:           true,
		},
		{
			ID:             "fallback-findahelpline",
			Name:           "Find A Helpline",
			Description:    "Find a free, confidential crisis line in your country.",
			Categories:     []safety.Category{safety.CategoryCrisis, safety.CategoryDomesticViolence, safety.CategoryEmotionalDistress},
			Contact:        Contact{Web: "https://findahelpline.com"},
			Coverage:       Coverage{Scope: ScopeInternational},
			Availability:   Availability{TwentyFourSeven: true},
			Verified:       true,
			Active:         true,
			Discreet:       true,
			CrisisSpecific: true,
			Free:           true,
		},
	}
}

// FallbackRegistry wraps FallbackResources.
func FallbackRegistry() *Registry {
	return &Registry{Version: "fallback", Resources: FallbackResources()}
}
