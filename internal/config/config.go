package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that override file-based configuration. Secrets are
// expected to come from the environment in deployed installs; the JSON file
// is for everything else.
const (
	EnvGitHubToken  = "RELAYNOTE_GITHUB_TOKEN"
	EnvHubSpotToken = "RELAYNOTE_HUBSPOT_TOKEN"
	EnvSyncSecret   = "RELAYNOTE_SYNC_SECRET"
)

// Config holds application configuration.
type Config struct {
	// GitHubToken authenticates release fetches. Optional for public repos
	// but strongly recommended (unauthenticated rate limits are tiny).
	GitHubToken string `json:"github_token,omitempty"`

	// GitHubBaseURL is the GitHub REST API root. Override for GHE.
	GitHubBaseURL string `json:"github_base_url,omitempty"`

	// HubSpotToken authenticates CRM note creation.
	HubSpotToken string `json:"hubspot_token,omitempty"`

	// HubSpotBaseURL is the CRM API root. Override in tests.
	HubSpotBaseURL string `json:"hubspot_base_url,omitempty"`

	// SyncSecret is the shared secret required by the HTTP sync endpoints.
	SyncSecret string `json:"sync_secret,omitempty"`

	// FetchLimit is the number of releases requested per mapping,
	// clamped to [1,100] at the client.
	FetchLimit int `json:"fetch_limit,omitempty"`

	// PublishDelayMs is the pause between consecutive note publishes
	// within one mapping, to stay under CRM throttling.
	PublishDelayMs int `json:"publish_delay_ms,omitempty"`

	// DBMaxOpenConns limits open database connections.
	// 0 means use sql.DB default. Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type prefixes to disable entirely.
	// Known types: "mapping", "sync", "run".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		GitHubBaseURL:  "https://api.github.com",
		HubSpotBaseURL: "https://api.hubapi.com",
		FetchLimit:     20,
		PublishDelayMs: 200,
	}
}

// Load loads configuration from baseDir/config.json, then applies
// environment overrides. Returns defaults if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.relaynote.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	applyEnv(merged)
	return merged, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays secrets from the environment onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvGitHubToken); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv(EnvHubSpotToken); v != "" {
		cfg.HubSpotToken = v
	}
	if v := os.Getenv(EnvSyncSecret); v != "" {
		cfg.SyncSecret = v
	}
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.GitHubToken = scalar(base.GitHubToken, overlay.GitHubToken)
	result.GitHubBaseURL = scalar(base.GitHubBaseURL, overlay.GitHubBaseURL)
	result.HubSpotToken = scalar(base.HubSpotToken, overlay.HubSpotToken)
	result.HubSpotBaseURL = scalar(base.HubSpotBaseURL, overlay.HubSpotBaseURL)
	result.SyncSecret = scalar(base.SyncSecret, overlay.SyncSecret)

	result.FetchLimit = scalarInt(base.FetchLimit, overlay.FetchLimit)
	result.PublishDelayMs = scalarInt(base.PublishDelayMs, overlay.PublishDelayMs)
	result.DBMaxOpenConns = scalarInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = scalarInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func scalar(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func scalarInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
