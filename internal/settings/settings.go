// Package settings holds the administrator-managed options the fetch pipeline
// reads on every run. The pipeline never writes them.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type EndpointMode string

const (
	ModeSearch    EndpointMode = "search"
	ModeHeadlines EndpointMode = "headlines"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultCategory = "general"
)

var ErrInvalid = errors.New("invalid settings")

var categories = map[string]bool{
	"general":       true,
	"business":      true,
	"entertainment": true,
	"health":        true,
	"science":       true,
	"sports":        true,
	"technology":    true,
}

// Settings selects the upstream query and the display page size.
type Settings struct {
	APIKey            string       `yaml:"api_key"            env:"NEWSDESK_API_KEY"`
	EndpointMode      EndpointMode `yaml:"endpoint_mode"      env:"NEWSDESK_ENDPOINT_MODE"      env-default:"search"`
	SearchQuery       string       `yaml:"search_query"       env:"NEWSDESK_SEARCH_QUERY"`
	HeadlinesCategory string       `yaml:"headlines_category" env:"NEWSDESK_HEADLINES_CATEGORY" env-default:"general"`
	PageSize          int          `yaml:"page_size"          env:"NEWSDESK_PAGE_SIZE"          env-default:"10"`
}

// Validate reports whether s can drive a fetch run.
func (s Settings) Validate() error {
	if s.APIKey == "" {
		return fmt.Errorf("%w: api key is empty", ErrInvalid)
	}
	switch s.EndpointMode {
	case ModeSearch:
	case ModeHeadlines:
		if s.HeadlinesCategory != "" && !categories[s.HeadlinesCategory] {
			return fmt.Errorf("%w: unknown headlines category %q", ErrInvalid, s.HeadlinesCategory)
		}
	default:
		return fmt.Errorf("%w: unknown endpoint mode %q", ErrInvalid, s.EndpointMode)
	}
	return nil
}

// Category returns the headlines category, falling back to general.
func (s Settings) Category() string {
	if s.HeadlinesCategory == "" {
		return DefaultCategory
	}
	return s.HeadlinesCategory
}

// EffectivePageSize clamps PageSize into [1, MaxPageSize].
func (s Settings) EffectivePageSize() int {
	switch {
	case s.PageSize <= 0:
		return DefaultPageSize
	case s.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return s.PageSize
	}
}

// Provider returns the settings in force right now.
type Provider interface {
	Current(ctx context.Context) (Settings, error)
}

// FileProvider re-reads a YAML file (plus env overrides) on every call, so
// edits take effect on the next run without a restart.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Current(_ context.Context) (Settings, error) {
	var s Settings
	if err := cleanenv.ReadConfig(p.path, &s); err != nil {
		return Settings{}, fmt.Errorf("read settings %s: %w", p.path, err)
	}
	return s, nil
}

// Static is an in-memory Provider. Set swaps the value atomically.
type Static struct {
	mu sync.RWMutex
	s  Settings
}

func NewStatic(s Settings) *Static {
	return &Static{s: s}
}

func (p *Static) Current(_ context.Context) (Settings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s, nil
}

func (p *Static) Set(s Settings) {
	p.mu.Lock()
	p.s = s
	p.mu.Unlock()
}
