package llm

import (
	"errors"
	"os"
	"strings"
)

// Attribution headers OpenRouter shows on its dashboards.
const (
	defaultSiteURL = "https://github.com/negotiation-bench"
	defaultTitle   = "NegotiationBench"
)

const (
	openAIBase     = "https://api.openai.com/v1"
	openRouterBase = "https://openrouter.ai/api/v1"
)

// Provider is the API a model id is sent to. Players and the fine-tune
// upload both go through the same chat/completions dialect.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
)

type apiConfig struct {
	Provider     Provider
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	ExtraHeaders map[string]string
}

// detectProvider picks the API from the environment. LLM_PROVIDER wins; then a
// base URL naming OpenRouter; then whichever key is set, OpenAI first.
func detectProvider(base string) Provider {
	switch Provider(strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))) {
	case ProviderOpenRouter:
		return ProviderOpenRouter
	case ProviderOpenAI:
		return ProviderOpenAI
	}
	if strings.Contains(strings.ToLower(base), "openrouter") {
		return ProviderOpenRouter
	}
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("OPENROUTER_API_KEY") != "" {
		return ProviderOpenRouter
	}
	return ProviderOpenAI
}

// resolveAPIConfig reads credentials for one call. An empty model falls back to
// OPENAI_MODEL; the organization header (OPENAI_ORG_ID) only goes to OpenAI.
func resolveAPIConfig(model string) (apiConfig, error) {
	base := firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_BASE"), os.Getenv("OPENROUTER_BASE_URL"))
	cfg := apiConfig{
		Provider:     detectProvider(base),
		Model:        firstNonEmpty(model, os.Getenv("OPENAI_MODEL")),
		ExtraHeaders: map[string]string{},
	}
	if base == "" {
		base = openAIBase
		if cfg.Provider == ProviderOpenRouter {
			base = openRouterBase
		}
	}
	cfg.BaseURL = strings.TrimRight(base, "/")

	switch cfg.Provider {
	case ProviderOpenRouter:
		cfg.APIKey = firstNonEmpty(os.Getenv("OPENROUTER_API_KEY"), os.Getenv("OPENAI_API_KEY"))
		site := firstNonEmpty(os.Getenv("OPENROUTER_SITE_URL"), defaultSiteURL)
		cfg.ExtraHeaders["HTTP-Referer"] = site
		cfg.ExtraHeaders["X-Title"] = firstNonEmpty(os.Getenv("OPENROUTER_TITLE"), defaultTitle)
	default:
		cfg.APIKey = firstNonEmpty(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENROUTER_API_KEY"))
		cfg.Organization = strings.TrimSpace(os.Getenv("OPENAI_ORG_ID"))
	}
	if cfg.APIKey == "" {
		return apiConfig{}, errors.New("API key missing: set OPENAI_API_KEY or OPENROUTER_API_KEY")
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
