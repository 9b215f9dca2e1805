package llm

import "testing"

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_PROVIDER", "OPENAI_BASE_URL", "OPENAI_API_BASE", "OPENROUTER_BASE_URL",
		"OPENAI_API_KEY", "OPENROUTER_API_KEY", "OPENAI_ORG_ID", "OPENAI_MODEL",
		"OPENROUTER_SITE_URL", "OPENROUTER_TITLE",
	} {
		t.Setenv(k, "")
	}
}

func TestResolveOpenAIWithOrganization(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("OPENAI_ORG_ID", "org-123")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := resolveAPIConfig("")
	if err != nil {
		t.Fatalf("resolveAPIConfig: %v", err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.BaseURL != openAIBase {
		t.Fatalf("expected OpenAI at %s, got %s at %s", openAIBase, cfg.Provider, cfg.BaseURL)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Fatalf("expected OPENAI_MODEL fallback, got %q", cfg.Model)
	}
	if cfg.Organization != "org-123" {
		t.Fatalf("expected organization from OPENAI_ORG_ID, got %q", cfg.Organization)
	}
	if len(cfg.ExtraHeaders) != 0 {
		t.Fatalf("OpenAI calls carry no attribution headers, got %+v", cfg.ExtraHeaders)
	}
}

func TestResolveOpenRouterFromKey(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or")
	t.Setenv("OPENAI_ORG_ID", "org-123")

	cfg, err := resolveAPIConfig("anthropic/claude-3.5-sonnet")
	if err != nil {
		t.Fatalf("resolveAPIConfig: %v", err)
	}
	if cfg.Provider != ProviderOpenRouter || cfg.BaseURL != openRouterBase || cfg.APIKey != "sk-or" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Organization != "" {
		t.Fatalf("organization must not be sent to OpenRouter, got %q", cfg.Organization)
	}
	if got := cfg.ExtraHeaders["HTTP-Referer"]; got != defaultSiteURL {
		t.Fatalf("unexpected HTTP-Referer: %q", got)
	}
	if got := cfg.ExtraHeaders["X-Title"]; got != defaultTitle {
		t.Fatalf("unexpected X-Title: %q", got)
	}
}

func TestResolveOpenRouterFromBaseURL(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("OPENAI_BASE_URL", "https://openrouter.ai/api/v1/")
	t.Setenv("OPENROUTER_TITLE", "Custom Title")

	cfg, err := resolveAPIConfig("meta-llama/llama-3.1-70b-instruct")
	if err != nil {
		t.Fatalf("resolveAPIConfig: %v", err)
	}
	if cfg.Provider != ProviderOpenRouter || cfg.BaseURL != openRouterBase {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.APIKey != "sk-openai" {
		t.Fatalf("expected OPENAI_API_KEY fallback, got %q", cfg.APIKey)
	}
	if got := cfg.ExtraHeaders["X-Title"]; got != "Custom Title" {
		t.Fatalf("unexpected X-Title: %q", got)
	}
}

func TestResolveProviderOverride(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or")
	t.Setenv("LLM_PROVIDER", "OpenAI")

	cfg, err := resolveAPIConfig("gpt-4o")
	if err != nil {
		t.Fatalf("resolveAPIConfig: %v", err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.BaseURL != openAIBase || cfg.APIKey != "sk-or" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestResolveNeedsKey(t *testing.T) {
	clearProviderEnv(t)
	if _, err := resolveAPIConfig("gpt-4o"); err == nil {
		t.Fatal("expected an error without any API key")
	}
}
