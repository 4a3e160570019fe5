package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Provider names accepted by OCR_PROVIDER / --provider
const (
	ProviderGeminiOpenAI    = "gemini-openai"
	ProviderGemini          = "gemini"
	ProviderOpenAI          = "openai"
	ProviderOpenAIResponses = "openai-responses"
	ProviderOllama          = "ollama"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultOllamaURL     = "http://localhost:11434"
)

// Config is the process-wide OCR configuration. It is built once at startup
// and passed by value; nothing mutates it afterwards.
type Config struct {
	Provider string

	OpenAIAPIKey string
	GeminiAPIKey string
	OllamaURL    string

	SystemPrompt    string
	Model           string
	BaseURL         string
	PromptID        string
	PromptVersion   string
	ReasoningEffort string

	MaxImages       int
	MaxBodyBytes    int64
	VerifyImages    bool
	Timeout         time.Duration
	MaxRounds       int
	MaxOutputTokens int
}

// keys maps viper keys to the flag names that may override them.
var keys = map[string]string{
	"ocr_provider":          "provider",
	"ocr_model":             "model",
	"ocr_timeout":           "timeout",
	"ocr_max_rounds":        "max-rounds",
	"ocr_max_output_tokens": "max-output-tokens",
	"ocr_max_images":        "max-images",
	"ocr_verify_images":     "verify-images",
}

// AddFlags registers the provider flags shared by every command that talks to an LLM.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("provider", ProviderGeminiOpenAI, "LLM provider (gemini-openai, gemini, openai, openai-responses, ollama)")
	fs.String("model", "", "Model name (defaults to the provider's default)")
	fs.Duration("timeout", 70*time.Second, "Upper bound for a single upstream call")
	fs.Int("max-rounds", 4, "Maximum upstream calls per request, continuations included")
	fs.Int("max-output-tokens", 8192, "Output token ceiling per upstream call")
	fs.Int("max-images", 0, "Maximum images per request (0 means no limit)")
	fs.Bool("verify-images", false, "Decode and sniff every image payload before calling the provider")
}

// Load reads the configuration from the environment, letting any flag in fs
// that the user explicitly set take precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ocr_provider", ProviderGeminiOpenAI)
	v.SetDefault("ocr_timeout", 70*time.Second)
	v.SetDefault("ocr_max_rounds", 4)
	v.SetDefault("ocr_max_output_tokens", 8192)
	v.SetDefault("ocr_max_images", 0)
	v.SetDefault("ocr_max_body_bytes", 20*1024*1024)
	v.SetDefault("ocr_verify_images", false)
	v.SetDefault("ollama_url", defaultOllamaURL)

	if fs != nil {
		for key, name := range keys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg := Config{
		Provider:        strings.ToLower(strings.TrimSpace(v.GetString("ocr_provider"))),
		OpenAIAPIKey:    strings.TrimSpace(v.GetString("openai_api_key")),
		GeminiAPIKey:    strings.TrimSpace(v.GetString("gemini_api_key")),
		OllamaURL:       strings.TrimRight(v.GetString("ollama_url"), "/"),
		SystemPrompt:    v.GetString("ocr_system_prompt"),
		Model:           strings.TrimSpace(v.GetString("ocr_model")),
		BaseURL:         strings.TrimRight(strings.TrimSpace(v.GetString("ocr_base_url")), "/"),
		PromptID:        strings.TrimSpace(v.GetString("openai_prompt_id")),
		PromptVersion:   strings.TrimSpace(v.GetString("openai_prompt_version")),
		ReasoningEffort: strings.TrimSpace(v.GetString("ocr_reasoning_effort")),
		MaxImages:       v.GetInt("ocr_max_images"),
		MaxBodyBytes:    v.GetInt64("ocr_max_body_bytes"),
		VerifyImages:    v.GetBool("ocr_verify_images"),
		Timeout:         v.GetDuration("ocr_timeout"),
		MaxRounds:       v.GetInt("ocr_max_rounds"),
		MaxOutputTokens: v.GetInt("ocr_max_output_tokens"),
	}

	switch cfg.Provider {
	case ProviderGeminiOpenAI, ProviderGemini, ProviderOpenAI, ProviderOpenAIResponses, ProviderOllama:
	default:
		return Config{}, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if cfg.Timeout <= 0 {
		return Config{}, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.MaxRounds < 1 {
		return Config{}, fmt.Errorf("max rounds must be at least 1, got %d", cfg.MaxRounds)
	}

	return cfg, nil
}

// Missing returns the name of the first required setting that is absent, or
// "" when the configuration is complete for the selected provider.
func (c Config) Missing() string {
	switch c.Provider {
	case ProviderGeminiOpenAI, ProviderGemini:
		if c.GeminiAPIKey == "" {
			return "GEMINI_API_KEY"
		}
	case ProviderOpenAI, ProviderOpenAIResponses:
		if c.OpenAIAPIKey == "" {
			return "OPENAI_API_KEY"
		}
	}

	// A hosted prompt carries its own instructions.
	if c.Provider == ProviderOpenAIResponses && c.PromptID != "" {
		return ""
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return "OCR_SYSTEM_PROMPT"
	}
	return ""
}

// ResolvedModel returns the configured model or the provider default.
func (c Config) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	switch c.Provider {
	case ProviderGeminiOpenAI:
		return "gemini-3-flash-preview"
	case ProviderGemini:
		return "gemini-2.5-flash"
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderOpenAIResponses:
		return "gpt-5-mini"
	case ProviderOllama:
		return "mistral-small3.2:24b"
	default:
		return ""
	}
}

// ResolvedBaseURL returns the API root for the OpenAI-style providers.
func (c Config) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	switch c.Provider {
	case ProviderGeminiOpenAI:
		return defaultGeminiBaseURL
	case ProviderOllama:
		return c.OllamaURL
	default:
		return defaultOpenAIBaseURL
	}
}
