package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "./data/settings.json"

// classicalLanguages are accepted as-is even though BCP 47 has no
// plain tag for them in the form users type.
var classicalLanguages = map[string]struct{}{
	"latin":   {},
	"greek":   {},
	"english": {},
}

// RuntimeSettings are the operator-adjustable knobs exposed through
// the settings API. They survive restarts via a JSON file.
type RuntimeSettings struct {
	LLMAPIURL        string   `json:"llm_api_url"`
	LLMAPIKey        string   `json:"llm_api_key"`
	LLMModel         string   `json:"llm_model"`
	ReconcileCron    string   `json:"reconcile_cron"`
	AllowedLanguages []string `json:"allowed_languages"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.LLMAPIURL) == "" {
		return fmt.Errorf("llm_api_url is required")
	}
	if strings.TrimSpace(s.LLMModel) == "" {
		return fmt.Errorf("llm_model is required")
	}
	if strings.TrimSpace(s.ReconcileCron) == "" {
		return fmt.Errorf("reconcile_cron is required")
	}
	if _, err := cron.ParseStandard(s.ReconcileCron); err != nil {
		return fmt.Errorf("invalid reconcile_cron: %w", err)
	}
	if len(s.AllowedLanguages) == 0 {
		return fmt.Errorf("allowed_languages must name at least one language")
	}
	for _, name := range s.AllowedLanguages {
		if err := validateLanguageName(name); err != nil {
			return err
		}
	}
	return nil
}

// validateLanguageName accepts the classical language names the
// pipeline knows plus anything BCP 47 can parse.
func validateLanguageName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("allowed_languages contains an empty entry")
	}
	if _, ok := classicalLanguages[strings.ToLower(trimmed)]; ok {
		return nil
	}
	if _, err := language.Parse(trimmed); err != nil {
		return fmt.Errorf("invalid language %q: %w", trimmed, err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMAPIURL:        c.LLM.APIURL,
		LLMAPIKey:        c.LLM.APIKey,
		LLMModel:         c.LLM.Model,
		ReconcileCron:    c.Reconcile.CronExpr,
		AllowedLanguages: append([]string(nil), c.Pipeline.AllowedLanguages...),
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.LLMAPIURL) != "" {
			c.LLM.APIURL = settings.LLMAPIURL
		}
		if strings.TrimSpace(settings.LLMAPIKey) != "" {
			c.LLM.APIKey = settings.LLMAPIKey
		}
		if strings.TrimSpace(settings.LLMModel) != "" {
			c.LLM.Model = settings.LLMModel
		}
		if strings.TrimSpace(settings.ReconcileCron) != "" {
			c.Reconcile.CronExpr = settings.ReconcileCron
		}
		if len(settings.AllowedLanguages) > 0 {
			c.Pipeline.AllowedLanguages = append([]string(nil), settings.AllowedLanguages...)
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore serializes settings reads and updates; updates
// are written to disk before they become visible.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
