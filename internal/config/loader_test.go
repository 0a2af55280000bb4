package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/popfetch.toml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}

	expected := Default()
	if cfg.LogLevel != expected.LogLevel {
		t.Errorf("log_level = %q, want default %q", cfg.LogLevel, expected.LogLevel)
	}
	if len(cfg.Accounts) != 0 {
		t.Errorf("expected no accounts, got %d", len(cfg.Accounts))
	}
}

func TestLoadValidTOML(t *testing.T) {
	content := `
log_level = "debug"

[[account]]
name = "work"
url = "pops://alice@mail.example.com"
pop_check_interval = "5m"
pop_last = true

[account.ssl]
verify_host = false

[[account]]
name = "personal"
url = "pop://bob@pop.example.org"
`

	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug'", cfg.LogLevel)
	}

	if len(cfg.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(cfg.Accounts))
	}

	work := cfg.Accounts[0]
	if work.Name != "work" || work.URL != "pops://alice@mail.example.com" {
		t.Errorf("accounts[0] = %+v", work)
	}
	if work.PopCheckInterval != "5m" {
		t.Errorf("accounts[0].pop_check_interval = %q, want '5m'", work.PopCheckInterval)
	}
	if !work.PopLast {
		t.Errorf("accounts[0].pop_last = false, want true")
	}
	if work.SSL.HostVerification() {
		t.Errorf("accounts[0].ssl.verify_host = true, want false (explicitly disabled)")
	}

	personal := cfg.Accounts[1]
	if personal.Name != "personal" || personal.URL != "pop://bob@pop.example.org" {
		t.Errorf("accounts[1] = %+v", personal)
	}
	// defaults filled in for fields not set in this stanza
	if personal.PopCheckInterval != "1m" {
		t.Errorf("accounts[1].pop_check_interval = %q, want default '1m'", personal.PopCheckInterval)
	}
	if !personal.SSL.HostVerification() {
		t.Errorf("accounts[1].ssl.verify_host should default true")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	content := `
[[account
url = "broken
`

	path := createTempConfig(t, content)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid TOML, got nil")
	}
}

func TestLoadPartialConfig(t *testing.T) {
	content := `
[[account]]
url = "pop://alice@mail.example.com"
`

	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(cfg.Accounts))
	}

	defaults := Default()
	if cfg.LogLevel != defaults.LogLevel {
		t.Errorf("log_level = %q, want default %q", cfg.LogLevel, defaults.LogLevel)
	}
	if cfg.Accounts[0].PopDelete != "no" {
		t.Errorf("pop_delete = %q, want default 'no'", cfg.Accounts[0].PopDelete)
	}
}

func TestLoadMetricsConfig(t *testing.T) {
	content := `
[[account]]
url = "pop://alice@mail.example.com"

[metrics]
enabled = true
address = ":9200"
path = "/custom-metrics"
`

	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Metrics.Enabled {
		t.Errorf("metrics.enabled = %v, want true", cfg.Metrics.Enabled)
	}
	if cfg.Metrics.Address != ":9200" {
		t.Errorf("metrics.address = %q, want ':9200'", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("metrics.path = %q, want '/custom-metrics'", cfg.Metrics.Path)
	}
}

func TestLoadMetricsConfigPartial(t *testing.T) {
	content := `
[[account]]
url = "pop://alice@mail.example.com"

[metrics]
enabled = true
`

	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Metrics.Enabled {
		t.Errorf("metrics.enabled = %v, want true", cfg.Metrics.Enabled)
	}

	defaults := Default()
	if cfg.Metrics.Address != defaults.Metrics.Address {
		t.Errorf("metrics.address = %q, want default %q", cfg.Metrics.Address, defaults.Metrics.Address)
	}
	if cfg.Metrics.Path != defaults.Metrics.Path {
		t.Errorf("metrics.path = %q, want default %q", cfg.Metrics.Path, defaults.Metrics.Path)
	}
}

func TestApplyFlagsURLReplacesAllAccounts(t *testing.T) {
	cfg := Default()
	cfg.Accounts = []Account{
		{Name: "a", URL: "pop://a@example.com"},
		{Name: "b", URL: "pop://b@example.com"},
	}

	flags := &Flags{URL: "pops://c@example.org"}

	result := ApplyFlags(cfg, flags)

	if len(result.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(result.Accounts))
	}
	if result.Accounts[0].URL != "pops://c@example.org" {
		t.Errorf("accounts[0].url = %q, want 'pops://c@example.org'", result.Accounts[0].URL)
	}
	if result.Accounts[0].Name != "default" {
		t.Errorf("accounts[0].name = %q, want 'default'", result.Accounts[0].Name)
	}
}

func TestApplyFlagsEmptyValuesDoNotOverride(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	cfg.Accounts = []Account{{Name: "kept", URL: "pop://kept@example.com"}}

	flags := &Flags{}

	result := ApplyFlags(cfg, flags)

	if result.LogLevel != "warn" {
		t.Errorf("log_level = %q, want 'warn' (should not be overridden)", result.LogLevel)
	}
	if len(result.Accounts) != 1 || result.Accounts[0].Name != "kept" {
		t.Errorf("accounts = %+v, want unchanged", result.Accounts)
	}
}

func TestFlagPriorityOverConfig(t *testing.T) {
	content := `
log_level = "info"

[[account]]
url = "pop://alice@mail.example.com"
`

	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	flags := &Flags{LogLevel: "debug", URL: "pops://bob@mail.example.org"}

	result := ApplyFlags(cfg, flags)

	if result.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug' (flag should override)", result.LogLevel)
	}
	if len(result.Accounts) != 1 || result.Accounts[0].URL != "pops://bob@mail.example.org" {
		t.Errorf("accounts = %+v, want single flag-supplied account", result.Accounts)
	}
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "popfetch.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create temp config: %v", err)
	}
	return path
}
