package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Listen != ":5000" {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Agents.MaxPlanIterations != 8 {
		t.Fatalf("max_plan_iterations = %d", cfg.Agents.MaxPlanIterations)
	}
	if !cfg.Search.DuckDuckGoEnabled {
		t.Fatalf("duckduckgo should be enabled by default")
	}
	if cfg.Export.AttachmentName != "grant_application.docx" {
		t.Fatalf("attachment name = %q", cfg.Export.AttachmentName)
	}

	provider, ok := cfg.LLM.Providers["openai"]
	if !ok {
		t.Fatalf("openai provider missing")
	}
	if provider.APIKey != "sk-test" {
		t.Fatalf("api key not taken from environment")
	}
	if provider.Timeout != 120*time.Second {
		t.Fatalf("provider timeout = %v", provider.Timeout)
	}
	if _, ok := provider.Models[cfg.LLM.Routing.Planning]; !ok {
		t.Fatalf("planning model %q not configured", cfg.LLM.Routing.Planning)
	}
}

func TestLoadConfigRequiresCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestLoadConfigSearchKeysFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SERPER_API_KEY", "serper-key")
	t.Setenv("BRAVE_SEARCH_KEY", "brave-key")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Search.SerperAPIKey != "serper-key" || cfg.Search.BraveAPIKey != "brave-key" {
		t.Fatalf("search keys not taken from environment: %+v", cfg.Search)
	}
}
