package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Feature flags understood by the safety pipeline.
const (
	// FeatureMessageBlocking lets the pipeline withhold hostile messages
	// from delivery.
	FeatureMessageBlocking = "message_blocking"
	// FeatureDispatchEarly starts non-safety validators alongside safety.
	FeatureDispatchEarly = "dispatch_early"
)

type AppConfig struct {
	AppID          string          `json:"app_id"`
	AppName        string          `json:"app_name"`
	DefaultCountry string          `json:"default_country"`
	Features       map[string]bool `json:"features"`
}

type AppsFile struct {
	Apps []AppConfig `json:"apps"`
}

type Registry struct {
	mu   sync.RWMutex
	apps map[string]*AppConfig
}

func NewRegistry() *Registry {
	return &Registry{
		apps: make(map[string]*AppConfig),
	}
}

func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read apps config: %w", err)
	}

	var file AppsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse apps config: %w", err)
	}

	registry := NewRegistry()
	for i := range file.Apps {
		if file.Apps[i].AppID == "" {
			return nil, fmt.Errorf("apps config entry %d has no app_id", i)
		}
		registry.Register(&file.Apps[i])
	}
	return registry, nil
}

func (r *Registry) Register(cfg *AppConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.DefaultCountry = strings.ToUpper(strings.TrimSpace(cfg.DefaultCountry))
	r.apps[cfg.AppID] = cfg
}

func (r *Registry) Get(appID string) *AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apps[appID]
}

func (r *Registry) Exists(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.apps[appID]
	return ok
}

func (r *Registry) HasFeature(appID, feature string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.apps[appID]
	if !ok {
		return false
	}
	return cfg.Features[feature]
}

// DefaultCountry returns the app's fallback country for resource matching,
// or "" when the app does not set one.
func (r *Registry) DefaultCountry(appID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.apps[appID]
	if !ok {
		return ""
	}
	return cfg.DefaultCountry
}

func (r *Registry) All() []*AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*AppConfig, 0, len(r.apps))
	for _, cfg := range r.apps {
		result = append(result, cfg)
	}
	return result
}
