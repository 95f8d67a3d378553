package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port               string `env:"PORT"                 env-default:"8080"`
	Env                string `env:"ENV"                  env-default:"development"`
	DatabaseURL        string `env:"DATABASE_URL"`
	RecordsDatabaseURL string `env:"RECORDS_DATABASE_URL"`

	JWTSecret        string        `env:"JWT_SECRET"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_EXPIRY"  env-default:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_EXPIRY" env-default:"168h"`

	BaseURL          string `env:"BASE_URL"           env-default:"http://localhost:8080"`
	LoginRedirectURL string `env:"LOGIN_REDIRECT_URL" env-default:"/communities/"`
	AdminEmail       string `env:"ADMIN_EMAIL"`

	GitHub OAuthConfig `env-prefix:"GITHUB_"`
	GitLab OAuthConfig `env-prefix:"GITLAB_"`
	Google OAuthConfig `env-prefix:"GOOGLE_"`

	SMTP      SMTPConfig
	Log       LogConfig
	Cache     CacheConfig
	Upload    UploadConfig
	Altmetric AltmetricConfig
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     string `env:"SMTP_PORT"     env-default:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// CacheConfig selects the moderation cache backend.
type CacheConfig struct {
	Backend   string        `env:"CACHE_BACKEND" env-default:"postgres"`
	CurateTTL time.Duration `env:"CURATE_TTL"    env-default:"5m"`
}

type UploadConfig struct {
	URL         string        `env:"UPLOAD_URL"          env-default:"http://localhost:4000"`
	CallbackURL string        `env:"UPLOAD_CALLBACK_URL"`
	Timeout     time.Duration `env:"UPLOAD_TIMEOUT"      env-default:"30s"`
}

type AltmetricConfig struct {
	BaseURL  string        `env:"ALTMETRIC_BASE_URL"  env-default:"https://api.altmetric.com/v1"`
	APIKey   string        `env:"ALTMETRIC_API_KEY"`
	Timeout  time.Duration `env:"ALTMETRIC_TIMEOUT"   env-default:"15s"`
	Interval time.Duration `env:"ALTMETRIC_INTERVAL"  env-default:"24h"`
	LockPath string        `env:"ALTMETRIC_LOCK_PATH" env-default:"/tmp/communities-altmetric.lock"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if cfg.RecordsDatabaseURL == "" {
		cfg.RecordsDatabaseURL = cfg.DatabaseURL
	}

	return &cfg, nil
}

// Validate checks the settings the web server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Cache.Backend {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be memory or postgres, got %q", c.Cache.Backend))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
