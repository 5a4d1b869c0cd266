package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"

	"github.com/zhouzirui/jac-chat/backend/internal/service/completion"
)

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Config aggregates every setting of the service.
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Chat   ChatConfig
	AI     AIConfig
}

// Load reads the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads settings from the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.Chat.validate(); err != nil {
		return nil, err
	}
	if err := cfg.AI.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Addr            string
}

// normalizeAddr turns PORT into a listen address.
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// allow ":8080" or "127.0.0.1:8080"
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// ChatConfig holds the generation parameters and controller behaviour.
type ChatConfig struct {
	Model           string        `env:"CHAT_MODEL" envDefault:"gpt-4"`
	MaxTokens       int           `env:"CHAT_MAX_TOKENS" envDefault:"100"`
	Temperature     float64       `env:"CHAT_TEMPERATURE" envDefault:"0.7"`
	Timeout         time.Duration `env:"CHAT_TIMEOUT" envDefault:"30s"`
	HistoryLimit    int           `env:"CHAT_HISTORY_LIMIT" envDefault:"10"`
	MaxPromptTokens int           `env:"CHAT_MAX_PROMPT_TOKENS" envDefault:"0"`
	FallbackMessage string        `env:"CHAT_FALLBACK_MESSAGE" envDefault:"Something went wrong. Try again!"`
}

func (c ChatConfig) validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("CHAT_MODEL must not be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("invalid CHAT_MAX_TOKENS value %d: must be positive", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("invalid CHAT_TEMPERATURE value %v: must be within [0, 2]", c.Temperature)
	}
	if c.HistoryLimit < 0 || c.MaxPromptTokens < 0 {
		return errors.New("CHAT_HISTORY_LIMIT and CHAT_MAX_PROMPT_TOKENS must not be negative")
	}
	return nil
}

// Params returns the fixed generation parameters.
func (c ChatConfig) Params() completion.Params {
	return completion.Params{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}

// Window builds the history window. A token counter is only loaded when a
// prompt token budget is configured.
func (c ChatConfig) Window() (completion.Window, error) {
	w := completion.Window{Limit: c.HistoryLimit, MaxTokens: c.MaxPromptTokens}
	if c.MaxPromptTokens > 0 {
		counter, err := completion.NewTokenCounter()
		if err != nil {
			return completion.Window{}, err
		}
		w.Counter = counter
	}
	return w, nil
}

// AIConfig selects and authenticates the completion backend.
type AIConfig struct {
	Provider string `env:"AI_PROVIDER" envDefault:"openai"`

	// OpenAIKey is the bearer token. It may be empty; requests then fail and
	// the chat shows the fallback message.
	OpenAIKey     string `env:"OPEN_AI"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	ArkAPIKey    string `env:"ARK_API_KEY"`
	ArkAccessKey string `env:"ARK_ACCESS_KEY"`
	ArkSecretKey string `env:"ARK_SECRET_KEY"`
	ArkModel     string `env:"ARK_MODEL"`
	ArkBaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion    string `env:"ARK_REGION" envDefault:"cn-beijing"`
}

func (c AIConfig) validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		return nil
	case ProviderArk:
		if !c.ArkEnabled() {
			return errors.New("ark provider requires ARK_MODEL and ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY")
		}
		return nil
	default:
		return fmt.Errorf("invalid AI_PROVIDER value %q", c.Provider)
	}
}

// ArkEnabled reports whether the Ark credentials are complete.
func (c AIConfig) ArkEnabled() bool {
	return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
}

// NewChatModel creates an Ark chat model.
func (c AIConfig) NewChatModel(ctx context.Context, chat ChatConfig) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, errors.New("ark credentials or model missing")
	}

	temperature := float32(chat.Temperature)
	maxTokens := chat.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       c.ArkModel,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

// NewCompleter builds the configured completion backend.
func (c *Config) NewCompleter(ctx context.Context, opts ...completion.OpenAIOption) (completion.Completer, error) {
	switch c.AI.Provider {
	case ProviderArk:
		chatModel, err := c.AI.NewChatModel(ctx, c.Chat)
		if err != nil {
			return nil, errors.Wrap(err, "create ark chat model")
		}
		return completion.NewArkClient(chatModel), nil
	default:
		opts = append([]completion.OpenAIOption{completion.WithBaseURL(c.AI.OpenAIBaseURL)}, opts...)
		return completion.NewOpenAIClient(c.AI.OpenAIKey, opts...), nil
	}
}
