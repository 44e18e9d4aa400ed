package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token           string        `yaml:"token" env:"ODANNA_BOT_TOKEN"`
	Mode            string        `yaml:"mode"` // polling | webhook (future)
	Username        string        `yaml:"username"`
	Workers         int           `yaml:"workers" env:"ODANNA_BOT_WORKERS"` // update workers, sharded by chat
	AdminIDs        []int64       `yaml:"admin_ids" env:"ODANNA_BOT_ADMIN_IDS"`
	RateLimit       int           `yaml:"rate_limit"` // messages per user per window
	RateWindow      time.Duration `yaml:"rate_window"`
	MaxMessageRunes int           `yaml:"max_message_runes"`
	Language        string        `yaml:"language"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"ODANNA_LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"ODANNA_LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                       // enable sampling in prod
}

type AdminConfig struct {
	Port int `yaml:"port" env:"ODANNA_ADMIN_PORT"` // 0 disables the admin server
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"ODANNA_DB_DRIVER"` // sqlite | postgres
	URL    string `yaml:"url" env:"ODANNA_DB_URL"`       // postgres dsn
	Path   string `yaml:"path" env:"ODANNA_DB_PATH"`     // sqlite file
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"ODANNA_REDIS_URL"` // empty disables redis
	Password string        `yaml:"password" env:"ODANNA_REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

func (r RedisConfig) Enabled() bool { return r.URL != "" }

type AIConfig struct {
	Enabled         bool          `yaml:"enabled" env:"ODANNA_AI_ENABLED"`
	Provider        string        `yaml:"provider"` // openai | gemini
	OpenAIKey       string        `yaml:"openai_key" env:"ODANNA_AI_OPENAI_KEY"`
	OpenAIBaseURL   string        `yaml:"openai_base_url" env:"ODANNA_AI_OPENAI_BASE_URL"`
	GeminiKey       string        `yaml:"gemini_key" env:"ODANNA_AI_GEMINI_KEY"`
	DefaultModel    string        `yaml:"default_model" env:"ODANNA_AI_MODEL"`
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxPromptTokens int           `yaml:"max_prompt_tokens"`
}

type EngineConfig struct {
	HistoryWindow   int           `yaml:"history_window"`
	PersonaPath     string        `yaml:"persona_path" env:"ODANNA_PERSONA_PATH"` // empty uses the embedded persona
	WatchPersona    bool          `yaml:"watch_persona"`
	SummaryInterval int           `yaml:"summary_interval"` // recompute summary every N user messages
	SummaryWorkers  int           `yaml:"summary_workers"`
	RandomSeed      int64         `yaml:"random_seed"` // 0 seeds from the clock
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

type SecurityConfig struct {
	EncryptionKey  string `yaml:"encryption_key" env:"ODANNA_ENCRYPTION_KEY"` // empty stores text in clear
	AdminJWTSecret string `yaml:"admin_jwt_secret" env:"ODANNA_ADMIN_JWT_SECRET"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Engine   EngineConfig   `yaml:"engine"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

type Flags struct {
	ConfigPath string
	EnvFile    string
	Dev        bool
}

func ParseFlags(args []string) (Flags, error) {
	var f Flags
	set := flag.NewFlagSet("odanna-bot", flag.ContinueOnError)
	set.StringVar(&f.ConfigPath, "config", "config.yaml", "path to config yaml")
	set.StringVar(&f.EnvFile, "env", ".env", "path to dotenv file")
	set.BoolVar(&f.Dev, "dev", false, "development mode")
	if err := set.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// Load reads the YAML file, then the dotenv file, then applies environment
// overrides. A missing dotenv file is fine; a missing config file is not.
func Load(f Flags) (*Config, error) {
	var cfg Config
	if f.ConfigPath != "" {
		b, err := os.ReadFile(f.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if f.EnvFile != "" {
		if err := godotenv.Load(f.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	cfg.Runtime.Dev = f.Dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.RateLimit <= 0 {
		cfg.Bot.RateLimit = 20
	}
	if cfg.Bot.RateWindow <= 0 {
		cfg.Bot.RateWindow = time.Minute
	}
	if cfg.Bot.MaxMessageRunes <= 0 {
		cfg.Bot.MaxMessageRunes = 4096
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "ru"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "odanna.db"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 8 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.MaxPromptTokens <= 0 {
		cfg.AI.MaxPromptTokens = 3000
	}

	if cfg.Engine.HistoryWindow <= 0 {
		cfg.Engine.HistoryWindow = 10
	}
	if cfg.Engine.SummaryInterval <= 0 {
		cfg.Engine.SummaryInterval = 10
	}
	if cfg.Engine.SummaryWorkers <= 0 {
		cfg.Engine.SummaryWorkers = 2
	}
	if cfg.Engine.LockTTL <= 0 {
		cfg.Engine.LockTTL = 30 * time.Second
	}
}

// Validate reports the first configuration error.
func (cfg *Config) Validate() error {
	if cfg.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.New("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}
	if cfg.AI.Enabled {
		switch cfg.AI.Provider {
		case "openai":
			if cfg.AI.OpenAIKey == "" {
				return errors.New("ai.openai_key is required when ai is enabled")
			}
		case "gemini":
			if cfg.AI.GeminiKey == "" {
				return errors.New("ai.gemini_key is required when ai is enabled")
			}
		default:
			return fmt.Errorf("ai.provider %q is not supported", cfg.AI.Provider)
		}
	}
	if n := len(cfg.Security.EncryptionKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24, or 32 bytes; got %d", n)
	}
	if cfg.Admin.Port > 0 && cfg.Security.AdminJWTSecret == "" {
		return errors.New("security.admin_jwt_secret is required when admin.port is set")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
