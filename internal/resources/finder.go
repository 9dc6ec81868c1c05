package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
)

// Source supplies the current registry.
type Source interface {
	Registry(ctx context.Context) (*Registry, error)
}

// StaticSource always returns the same registry.
type StaticSource struct {
	reg *Registry
}

func NewStaticSource(reg *Registry) StaticSource { return StaticSource{reg: reg} }

func (s StaticSource) Registry(ctx context.Context) (*Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.reg == nil {
		return nil, errors.New("no registry configured")
	}
	return s.reg, nil
}

// FileSource serves a registry file and reloads it when its modification
// time changes. A reload that fails keeps serving the last good registry.
type FileSource struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	cached  *Registry
	modTime time.Time
}

func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{path: path, logger: logger}
}

func (s *FileSource) Registry(ctx context.Context) (*Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(s.path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.cached != nil {
			s.logger.Warn("resource registry unavailable, serving cached copy", "path", s.path, "error", err)
			return s.cached, nil
		}
		return nil, fmt.Errorf("stat resource registry: %w", err)
	}
	if s.cached != nil && info.ModTime().Equal(s.modTime) {
		return s.cached, nil
	}

	reg, err := LoadRegistry(s.path)
	if err != nil {
		if s.cached != nil {
			s.logger.Error("resource registry reload failed, serving cached copy", "path", s.path, "error", err)
			return s.cached, nil
		}
		return nil, err
	}
	s.cached = reg
	s.modTime = info.ModTime()
	s.logger.Info("resource registry loaded", "path", s.path, "version", reg.Version, "resources", len(reg.Resources))
	return reg, nil
}

// FinderConfig tunes lookup timeouts and the circuit breaker.
type FinderConfig struct {
	Timeout               time.Duration
	DefaultCountry        string
	MinLocationConfidence float64
	// BreakerFailures is the number of consecutive failures that opens
	// the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (c FinderConfig) withDefaults() FinderConfig {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// Finder resolves resources against a Source. Lookups are bounded by a
// timeout and guarded by a circuit breaker; any failure degrades to the
// hardcoded fallback set.
type Finder struct {
	source  Source
	matcher Matcher
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	// OnFallback is called whenever a lookup degraded to the fallback set.
	OnFallback func(reason error)
}

func NewFinder(source Source, cfg FinderConfig, logger *slog.Logger) *Finder {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	f := &Finder{
		source: source,
		matcher: Matcher{
			DefaultCountry:        cfg.DefaultCountry,
			MinLocationConfidence: cfg.MinLocationConfidence,
		},
		timeout: cfg.Timeout,
		logger:  logger,
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "resource-registry",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return f
}

// Find returns ranked resources and never an empty list. The returned
// bool is true when the result came from the fallback set because the
// registry could not be consulted.
func (f *Finder) Find(ctx context.Context, categories []safety.Category, loc *Location, opts MatchOptions) ([]RankedResource, bool) {
	reg, err := f.registry(ctx)
	if err != nil {
		f.logger.Warn("resource lookup degraded to fallback set", "error", err)
		if f.OnFallback != nil {
			f.OnFallback(err)
		}
		return f.matcher.Match(FallbackRegistry(), categories, loc, opts), true
	}
	return f.matcher.Match(reg, categories, loc, opts), false
}

// Registry returns the current registry through the breaker.
func (f *Finder) Registry(ctx context.Context) (*Registry, error) {
	return f.registry(ctx)
}

// Get looks up a single resource by id, falling back to the hardcoded set.
func (f *Finder) Get(ctx context.Context, id string) (CrisisResource, bool) {
	if reg, err := f.registry(ctx); err == nil {
		if res, ok := reg.Get(id); ok {
			return res, true
		}
	}
	return FallbackRegistry().Get(id)
}

func (f *Finder) registry(ctx context.Context) (*Registry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out, err := f.breaker.Execute(func() (interface{}, error) {
		type result struct {
			reg *Registry
			err error
		}
		ch := make(chan result, 1)
		go func() {
			reg, err := f.source.Registry(ctx)
			ch <- result{reg, err}
		}()
		select {
		case r := <-ch:
			return r.reg, r.err
		case <-ctx.Done():
			return nil, fmt.Errorf("resource registry: %w", ctx.Err())
		}
	})
	if err != nil {
		return nil, err
	}
	return out.(*Registry), nil
}

// State exposes the breaker state for health reporting.
func (f *Finder) State() string {
	return f.breaker.State().String()
}
