package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GitHubBaseURL != "https://api.github.com" {
		t.Errorf("GitHubBaseURL = %q, want default", cfg.GitHubBaseURL)
	}
	if cfg.FetchLimit != 20 {
		t.Errorf("FetchLimit = %d, want 20", cfg.FetchLimit)
	}
	if cfg.PublishDelayMs != 200 {
		t.Errorf("PublishDelayMs = %d, want 200", cfg.PublishDelayMs)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `{"fetch_limit": 50, "github_base_url": "https://ghe.internal/api/v3", "disabled_tools": ["sync_run"]}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.FetchLimit != 50 {
		t.Errorf("FetchLimit = %d, want 50", cfg.FetchLimit)
	}
	if cfg.GitHubBaseURL != "https://ghe.internal/api/v3" {
		t.Errorf("GitHubBaseURL = %q, want override", cfg.GitHubBaseURL)
	}
	// Untouched scalar keeps its default.
	if cfg.PublishDelayMs != 200 {
		t.Errorf("PublishDelayMs = %d, want 200", cfg.PublishDelayMs)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "sync_run" {
		t.Errorf("DisabledTools = %v, want [sync_run]", cfg.DisabledTools)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("Load should fail on malformed JSON")
	}
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	dir := t.TempDir()
	content := `{"github_token": "file-token", "sync_secret": "file-secret"}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvGitHubToken, "env-token")
	t.Setenv(EnvSyncSecret, "")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GitHubToken != "env-token" {
		t.Errorf("GitHubToken = %q, want env override", cfg.GitHubToken)
	}
	// Empty env var does not clobber the file value.
	if cfg.SyncSecret != "file-secret" {
		t.Errorf("SyncSecret = %q, want file value", cfg.SyncSecret)
	}
}

func TestMerge_Slices(t *testing.T) {
	base := &Config{DisabledTools: []string{"a", "b"}}
	overlay := &Config{DisabledTools: []string{" b ", "c", ""}}

	merged := Merge(base, overlay)

	want := []string{"a", "b", "c"}
	if len(merged.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", merged.DisabledTools, want)
	}
	for i := range want {
		if merged.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, merged.DisabledTools[i], want[i])
		}
	}
}
