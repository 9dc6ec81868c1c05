package safety

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatternsYAML []byte

var ErrInvalidPatternLibrary = errors.New("invalid pattern library")

// PatternTier is one weighted group of phrases sharing a severity.
type PatternTier struct {
	Name        string        `yaml:"name" json:"name"`
	Subtype     string        `yaml:"subtype" json:"subtype"`
	Severity    Severity      `yaml:"severity" json:"severity"`
	Confidence  float64       `yaml:"confidence" json:"confidence"`
	Kind        IndicatorKind `yaml:"kind" json:"kind"`
	Description string        `yaml:"description" json:"description"`
	Phrases     []string      `yaml:"phrases" json:"phrases"`
	Exclusions  []string      `yaml:"exclusions" json:"exclusions"`

	phrases    []string
	exclusions []string
}

// PatternLibrary is the versioned, read-only set of detection patterns.
type PatternLibrary struct {
	Version    string                     `yaml:"version" json:"version"`
	Categories map[Category][]PatternTier `yaml:"categories" json:"categories"`
}

// DefaultPatternLibrary returns the embedded library.
func DefaultPatternLibrary() *PatternLibrary {
	lib, err := ParsePatternLibrary(defaultPatternsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded pattern library: %v", err))
	}
	return lib
}

// LoadPatternLibrary reads a library from a YAML file.
func LoadPatternLibrary(path string) (*PatternLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern library: %w", err)
	}
	return ParsePatternLibrary(data)
}

// ParsePatternLibrary decodes and validates a YAML library.
func ParsePatternLibrary(data []byte) (*PatternLibrary, error) {
	var lib PatternLibrary
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to parse pattern library: %w", err)
	}
	if err := lib.compile(); err != nil {
		return nil, err
	}
	return &lib, nil
}

func (l *PatternLibrary) compile() error {
	if l.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidPatternLibrary)
	}
	for cat, tiers := range l.Categories {
		if !cat.Valid() || cat == CategoryBehavioral {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidPatternLibrary, cat)
		}
		for i := range tiers {
			t := &tiers[i]
			if t.Confidence <= 0 || t.Confidence > 1 {
				return fmt.Errorf("%w: tier %s confidence %.2f outside (0,1]", ErrInvalidPatternLibrary, t.Name, t.Confidence)
			}
			if t.Kind == "" {
				t.Kind = KindKeyword
			}
			t.phrases = t.phrases[:0]
			for _, p := range t.Phrases {
				n := normalizeText(p)
				if n == "" {
					return fmt.Errorf("%w: tier %s has an empty phrase", ErrInvalidPatternLibrary, t.Name)
				}
				t.phrases = append(t.phrases, n)
			}
			if len(t.phrases) == 0 {
				return fmt.Errorf("%w: tier %s has no phrases", ErrInvalidPatternLibrary, t.Name)
			}
			t.exclusions = t.exclusions[:0]
			for _, e := range t.Exclusions {
				if n := normalizeText(e); n != "" {
					t.exclusions = append(t.exclusions, n)
				}
			}
		}
	}
	return nil
}

// Tiers returns the tiers of a category.
func (l *PatternLibrary) Tiers(c Category) []PatternTier {
	if l == nil {
		return nil
	}
	return l.Categories[c]
}
