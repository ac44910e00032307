package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
)

// Config holds the configuration for the application.
type Config struct {
	// LLM Config
	LLMProvider     string  `yaml:"llm_provider"`
	GeminiAPIKey    string  `yaml:"-"`
	GeminiModel     string  `yaml:"gemini_model"`
	GroqAPIKey      string  `yaml:"-"`
	GroqModel       string  `yaml:"groq_model"`
	PlanTemperature float32 `yaml:"plan_temperature"`
	ChatTemperature float32 `yaml:"chat_temperature"`

	// Session Config
	DebounceWindow  time.Duration `yaml:"debounce_window"`
	DefaultCalories int           `yaml:"default_calories"`
	GenerateOnStart bool          `yaml:"generate_on_start"`

	// HTTP Config
	Port         string   `yaml:"port"`
	APIJWTSecret string   `yaml:"-"`
	CORSOrigins  []string `yaml:"cors_origins"`

	DatabasePath string `yaml:"database_path"`
	NATSURL      string `yaml:"nats_url"`
	LogLevel     string `yaml:"log_level"`

	// Telegram Config
	TelegramBotToken    string `yaml:"-"`
	TelegramWebhookURL  string `yaml:"telegram_webhook_url"`
	TelegramAllowUserID int64  `yaml:"telegram_allow_user_id"`
	AdminTelegramID     int64  `yaml:"admin_telegram_id"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		LLMProvider:     ProviderGemini,
		GeminiModel:     "gemini-2.5-flash",
		GroqModel:       "llama-3.3-70b-versatile",
		PlanTemperature: 0.3,
		ChatTemperature: 0.7,
		DebounceWindow:  800 * time.Millisecond,
		DefaultCalories: 2000,
		GenerateOnStart: true,
		Port:            "8080",
		CORSOrigins:     []string{"http://localhost:3000"},
		DatabasePath:    "data/meal-engine.db",
		LogLevel:        "info",
	}
}

// LoadFile overlays the YAML file at path onto the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first when present, and
// MEAL_ENGINE_CONFIG may point at a YAML file providing the base values.
//
// A missing API key is not an error here: planning calls fail when they are
// made instead.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("MEAL_ENGINE_CONFIG"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	setString(&cfg.LLMProvider, "LLM_PROVIDER")
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.GeminiModel, "GEMINI_MODEL")
	setString(&cfg.GroqAPIKey, "GROQ_API_KEY")
	setString(&cfg.GroqModel, "GROQ_MODEL")
	setString(&cfg.Port, "PORT")
	setString(&cfg.APIJWTSecret, "API_JWT_SECRET")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.NATSURL, "NATS_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.TelegramWebhookURL, "TELEGRAM_WEBHOOK_URL")

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if v := os.Getenv("DEBOUNCE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEBOUNCE_WINDOW %q: %w", v, err)
		}
		cfg.DebounceWindow = d
	}
	if v := os.Getenv("DEFAULT_CALORIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_CALORIES %q: %w", v, err)
		}
		cfg.DefaultCalories = n
	}
	if v := os.Getenv("GENERATE_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GENERATE_ON_START %q: %w", v, err)
		}
		cfg.GenerateOnStart = b
	}
	for key, dst := range map[string]*float32{
		"PLAN_TEMPERATURE": &cfg.PlanTemperature,
		"CHAT_TEMPERATURE": &cfg.ChatTemperature,
	} {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = float32(f)
		}
	}
	for key, dst := range map[string]*int64{
		"TELEGRAM_ALLOW_USER_ID": &cfg.TelegramAllowUserID,
		"ADMIN_TELEGRAM_ID":      &cfg.AdminTelegramID,
	} {
		if v := os.Getenv(key); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = id
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be deferred to request time.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGemini, ProviderGroq:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.DebounceWindow <= 0 {
		return fmt.Errorf("debounce window must be positive, got %s", c.DebounceWindow)
	}
	return nil
}

// RequireTelegram reports whether the bot settings are present.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
