package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"market-pulse-bot/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Hub       HubConfig       `mapstructure:"hub"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Market    MarketConfig    `mapstructure:"market"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Charts    ChartConfig     `mapstructure:"charts"`
	Retention RetentionConfig `mapstructure:"retention"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	DryRun      bool   `mapstructure:"dry_run"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// HubConfig covers data hub access and authentication.
type HubConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SchedulerConfig governs slot planning and job registration.
type SchedulerConfig struct {
	Timezone string   `mapstructure:"timezone"`
	DailyCap int      `mapstructure:"daily_cap"`
	Sources  []string `mapstructure:"sources"`
}

// MarketConfig pins the exchange session used to gate session-only feeds.
type MarketConfig struct {
	OpenHour    int `mapstructure:"open_hour"`
	OpenMinute  int `mapstructure:"open_minute"`
	CloseHour   int `mapstructure:"close_hour"`
	CloseMinute int `mapstructure:"close_minute"`
}

// OpenAIConfig drives optional AI copywriting.
type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TwitterConfig 描述 Twitter 发布端参数。
type TwitterConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BearerToken       string        `mapstructure:"bearer_token"`
	APIBase           string        `mapstructure:"api_base"`
	UploadBase        string        `mapstructure:"upload_base"`
	MaxPostsPerMinute int           `mapstructure:"max_posts_per_minute"`
	MaxPostsPerDay    int           `mapstructure:"max_posts_per_day"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// DiscordConfig 描述 Discord webhook 发布端参数。
type DiscordConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Webhooks       []string      `mapstructure:"webhooks"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChartConfig controls the on-disk chart image cache.
type ChartConfig struct {
	CacheDir       string        `mapstructure:"cache_dir"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetentionConfig bounds how long publish history is kept.
type RetentionConfig struct {
	Days int `mapstructure:"days"`
}

// OpsConfig exposes the operational HTTP surface.
type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Days int `mapstructure:"days"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PULSEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pulsebot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.dry_run", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("hub.base_url", "https://fin-hub.fly.dev/api/v1/data")
	v.SetDefault("hub.request_timeout", "30s")
	v.SetDefault("hub.retry_attempts", 3)
	v.SetDefault("hub.retry_backoff", "5s")
	v.SetDefault("hub.user_agent", "pulsebot/1.0")

	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.daily_cap", 17)

	v.SetDefault("market.open_hour", 9)
	v.SetDefault("market.open_minute", 30)
	v.SetDefault("market.close_hour", 16)
	v.SetDefault("market.close_minute", 0)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.request_timeout", "30s")

	v.SetDefault("twitter.enabled", true)
	v.SetDefault("twitter.api_base", "https://api.twitter.com")
	v.SetDefault("twitter.upload_base", "https://upload.twitter.com")
	v.SetDefault("twitter.max_posts_per_minute", 1)
	v.SetDefault("twitter.max_posts_per_day", 15)
	v.SetDefault("twitter.request_timeout", "15s")

	v.SetDefault("discord.enabled", true)
	v.SetDefault("discord.rate_per_second", 1.0)
	v.SetDefault("discord.request_timeout", "15s")

	v.SetDefault("charts.cache_dir", "chart_cache")
	v.SetDefault("charts.max_age", "24h")
	v.SetDefault("charts.request_timeout", "20s")

	v.SetDefault("retention.days", 7)

	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.addr", ":8080")

	v.SetDefault("export.days", 30)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.DailyCap <= 0 {
		return fmt.Errorf("scheduler.daily_cap must be greater than zero")
	}
	if c.Scheduler.Timezone == "" {
		return fmt.Errorf("scheduler.timezone must be set")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be greater than zero")
	}
	if c.Export.Days <= 0 {
		return fmt.Errorf("export.days must be greater than zero")
	}
	if c.Twitter.MaxPostsPerMinute <= 0 || c.Twitter.MaxPostsPerDay <= 0 {
		return fmt.Errorf("twitter posting caps must be greater than zero")
	}
	open := c.Market.OpenHour*60 + c.Market.OpenMinute
	close := c.Market.CloseHour*60 + c.Market.CloseMinute
	if open >= close {
		return fmt.Errorf("market open must precede market close")
	}
	if c.Discord.Enabled && c.Discord.RatePerSecond <= 0 {
		return fmt.Errorf("discord.rate_per_second must be greater than zero")
	}
	if c.Hub.BaseURL == "" {
		return fmt.Errorf("hub.base_url 必须配置")
	}
	if c.Ops.Enabled && c.Ops.Addr == "" {
		return fmt.Errorf("ops.addr 必须配置")
	}
	return nil
}

// MissingCredentials lists required secrets that are absent. Dry-run mode
// skips this check so the pipeline can be exercised without live keys.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Hub.Username == "" {
		missing = append(missing, "hub.username")
	}
	if c.Hub.Password == "" {
		missing = append(missing, "hub.password")
	}
	if c.Twitter.Enabled && c.Twitter.BearerToken == "" {
		missing = append(missing, "twitter.bearer_token")
	}
	if c.Discord.Enabled && len(c.Discord.Webhooks) == 0 {
		missing = append(missing, "discord.webhooks")
	}
	return missing
}

// ResolveExportDays returns either the CLI override or config default.
func (c *Config) ResolveExportDays(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.Days
}
