package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	path := writeTempConfig(t, `provider:
  openai:
    api_key: test-key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Server.MCPPort != 4601 {
		t.Errorf("Server.MCPPort = %d, want 4601", cfg.Server.MCPPort)
	}
	if cfg.Provider.Active != "openai" {
		t.Errorf("Provider.Active = %q, want openai", cfg.Provider.Active)
	}
	if cfg.Provider.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("OpenAI.Model = %q", cfg.Provider.OpenAI.Model)
	}
	if !cfg.Generation.TwoPass {
		t.Error("Generation.TwoPass default should be true")
	}
	if cfg.Generation.MaxContentChars != 12000 {
		t.Errorf("MaxContentChars = %d, want 12000", cfg.Generation.MaxContentChars)
	}
	if cfg.Generation.MinContentChars != 50 {
		t.Errorf("MinContentChars = %d, want 50", cfg.Generation.MinContentChars)
	}
}

func TestFileValuesOverrideDefaults(t *testing.T) {
	path := writeTempConfig(t, `server:
  port: 9000
provider:
  openai:
    api_key: test-key
    model: gpt-4o
generation:
  two_pass: false
  max_content_chars: 8000
site:
  name: Acme
  enabled_page_types: [page]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Provider.OpenAI.Model != "gpt-4o" {
		t.Errorf("OpenAI.Model = %q", cfg.Provider.OpenAI.Model)
	}
	if cfg.Generation.TwoPass {
		t.Error("two_pass: false ignored")
	}
	if cfg.Generation.MaxContentChars != 8000 {
		t.Errorf("MaxContentChars = %d, want 8000", cfg.Generation.MaxContentChars)
	}
	if cfg.Site.Name != "Acme" {
		t.Errorf("Site.Name = %q", cfg.Site.Name)
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `provider:
  openai:
    api_key: file-key
`)
	t.Setenv("LDGEN_OPENAI_API_KEY", "env-key")
	t.Setenv("LDGEN_PORT", "7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.OpenAI.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.Provider.OpenAI.APIKey)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
}

func TestMissingAPIKeyFails(t *testing.T) {
	path := writeTempConfig(t, `site:
  name: Acme
`)
	t.Setenv("LDGEN_OPENAI_API_KEY", "")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "API key") {
		t.Errorf("error = %q, want it to mention the API key", err.Error())
	}
}

func TestUnknownProviderFails(t *testing.T) {
	path := writeTempConfig(t, `provider:
  active: mystery
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestActiveAccount(t *testing.T) {
	cfg := defaults()
	cfg.Provider.Active = "claude"
	cfg.Provider.Claude.APIKey = "k"

	acct, err := cfg.ActiveAccount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q", acct.Model)
	}
}

func TestPageTypeEnabled(t *testing.T) {
	cfg := defaults()
	if !cfg.PageTypeEnabled("page") || !cfg.PageTypeEnabled("post") {
		t.Error("default page types not enabled")
	}
	if cfg.PageTypeEnabled("attachment") {
		t.Error("attachment should not be enabled by default")
	}
}
