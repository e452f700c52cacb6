package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/polynotify/internal/models"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	WhatsApp   WhatsAppConfig   `mapstructure:"whatsapp"`
	Discord    DiscordConfig    `mapstructure:"discord"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PolymarketConfig holds the Gamma API client and the market filters
type PolymarketConfig struct {
	GammaAPIURL      string        `mapstructure:"gamma_api_url"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	TagID            string        `mapstructure:"tag_id"`
	FetchLimit       int           `mapstructure:"fetch_limit"`
	ClosedFetchLimit int           `mapstructure:"closed_fetch_limit"`
	IncludeRecurring bool          `mapstructure:"include_recurring"`
	MinLiquidity     float64       `mapstructure:"min_liquidity"`
	TagWhitelist     []string      `mapstructure:"tag_whitelist"`
	TitleKeywords    []string      `mapstructure:"title_keywords"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelayBase   time.Duration `mapstructure:"retry_delay_base"`
}

// AlertsConfig holds the enabled alert kinds and their thresholds
type AlertsConfig struct {
	Enabled               []string      `mapstructure:"enabled"`
	NewMarketMaxAge       time.Duration `mapstructure:"new_market_max_age"` // 0 = no age limit
	ClosingWindow         time.Duration `mapstructure:"closing_window"`
	PriceThreshold        float64       `mapstructure:"price_threshold"`
	PriceLookback         time.Duration `mapstructure:"price_lookback"`
	PriceCooldown         time.Duration `mapstructure:"price_cooldown"`
	VolumeSpikeMultiplier float64       `mapstructure:"volume_spike_multiplier"`
	VolumeLookback        time.Duration `mapstructure:"volume_lookback"`
	VolumeCooldown        time.Duration `mapstructure:"volume_cooldown"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// WhatsAppConfig holds Twilio WhatsApp configuration
type WhatsAppConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	From       string        `mapstructure:"from"`
	To         string        `mapstructure:"to"`
	APIURL     string        `mapstructure:"api_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// DiscordConfig holds Discord webhook configuration
type DiscordConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Username   string        `mapstructure:"username"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds the history database and its retention
type StorageConfig struct {
	DBPath            string        `mapstructure:"db_path"`
	SnapshotRetention time.Duration `mapstructure:"snapshot_retention"`
	PruneEveryCycles  int           `mapstructure:"prune_every_cycles"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// secretEnv maps config keys to the conventional variable names they can
// also be read from.
var secretEnv = map[string]string{
	"telegram.bot_token":   "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":     "TELEGRAM_CHAT_ID",
	"whatsapp.account_sid": "TWILIO_ACCOUNT_SID",
	"whatsapp.auth_token":  "TWILIO_AUTH_TOKEN",
	"whatsapp.from":        "TWILIO_WHATSAPP_FROM",
	"whatsapp.to":          "TWILIO_WHATSAPP_TO",
	"discord.webhook_url":  "DISCORD_WEBHOOK_URL",
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory is loaded first; variables already set win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// POLYNOTIFY_ALERTS_PRICE_THRESHOLD overrides alerts.price_threshold
	v.SetEnvPrefix("POLYNOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range secretEnv {
		prefixed := "POLYNOTIFY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("polymarket.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.poll_interval", "60s")
	v.SetDefault("polymarket.tag_id", "21") // crypto
	v.SetDefault("polymarket.fetch_limit", 100)
	v.SetDefault("polymarket.closed_fetch_limit", 20)
	v.SetDefault("polymarket.include_recurring", false)
	v.SetDefault("polymarket.min_liquidity", 0.0)
	v.SetDefault("polymarket.tag_whitelist", []string{})
	v.SetDefault("polymarket.title_keywords", []string{})
	v.SetDefault("polymarket.timeout", "30s")
	v.SetDefault("polymarket.max_retries", 3)
	v.SetDefault("polymarket.retry_delay_base", "1s")

	v.SetDefault("alerts.enabled", []string{"new_market", "closing_soon", "resolved", "price_move", "volume_spike"})
	v.SetDefault("alerts.new_market_max_age", "24h")
	v.SetDefault("alerts.closing_window", "2h")
	v.SetDefault("alerts.price_threshold", 0.15)
	v.SetDefault("alerts.price_lookback", "60m")
	v.SetDefault("alerts.price_cooldown", "30m")
	v.SetDefault("alerts.volume_spike_multiplier", 3.0)
	v.SetDefault("alerts.volume_lookback", "60m")
	v.SetDefault("alerts.volume_cooldown", "60m")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("whatsapp.enabled", false)
	v.SetDefault("whatsapp.api_url", "https://api.twilio.com")
	v.SetDefault("whatsapp.timeout", "15s")

	v.SetDefault("discord.enabled", false)
	v.SetDefault("discord.username", "polynotify")
	v.SetDefault("discord.timeout", "15s")

	v.SetDefault("storage.db_path", "data/polynotify.db")
	v.SetDefault("storage.snapshot_retention", "24h")
	v.SetDefault("storage.prune_every_cycles", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// EnabledKinds parses alerts.enabled.
func (c *Config) EnabledKinds() ([]models.AlertKind, error) {
	kinds := make([]models.AlertKind, 0, len(c.Alerts.Enabled))
	for _, s := range c.Alerts.Enabled {
		k, err := models.ParseAlertKind(s)
		if err != nil {
			return nil, fmt.Errorf("alerts.enabled: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Polymarket.GammaAPIURL == "" {
		return fmt.Errorf("polymarket.gamma_api_url is required")
	}
	if c.Polymarket.PollInterval < 10*time.Second {
		return fmt.Errorf("polymarket.poll_interval must be at least 10 seconds")
	}
	if c.Polymarket.FetchLimit < 1 || c.Polymarket.FetchLimit > 1000 {
		return fmt.Errorf("polymarket.fetch_limit must be between 1 and 1000")
	}
	if c.Polymarket.ClosedFetchLimit < 0 || c.Polymarket.ClosedFetchLimit > 1000 {
		return fmt.Errorf("polymarket.closed_fetch_limit must be between 0 and 1000")
	}
	if c.Polymarket.MinLiquidity < 0 {
		return fmt.Errorf("polymarket.min_liquidity must not be negative")
	}
	if c.Polymarket.Timeout <= 0 {
		return fmt.Errorf("polymarket.timeout must be positive")
	}
	if c.Polymarket.MaxRetries < 0 {
		return fmt.Errorf("polymarket.max_retries must not be negative")
	}

	if _, err := c.EnabledKinds(); err != nil {
		return err
	}
	if c.Alerts.NewMarketMaxAge < 0 {
		return fmt.Errorf("alerts.new_market_max_age must not be negative")
	}
	if c.Alerts.ClosingWindow <= 0 {
		return fmt.Errorf("alerts.closing_window must be positive")
	}
	if c.Alerts.PriceThreshold <= 0.0 || c.Alerts.PriceThreshold > 1.0 {
		return fmt.Errorf("alerts.price_threshold must be between 0.0 and 1.0")
	}
	if c.Alerts.PriceLookback < 0 || c.Alerts.VolumeLookback < 0 {
		return fmt.Errorf("alerts lookbacks must not be negative")
	}
	if c.Alerts.PriceCooldown < 0 || c.Alerts.VolumeCooldown < 0 {
		return fmt.Errorf("alerts cooldowns must not be negative")
	}
	if c.Alerts.VolumeSpikeMultiplier <= 1.0 {
		return fmt.Errorf("alerts.volume_spike_multiplier must be greater than 1.0")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.WhatsApp.Enabled {
		if c.WhatsApp.AccountSID == "" || c.WhatsApp.AuthToken == "" {
			return fmt.Errorf("whatsapp.account_sid and whatsapp.auth_token are required when whatsapp is enabled")
		}
		if c.WhatsApp.From == "" || c.WhatsApp.To == "" {
			return fmt.Errorf("whatsapp.from and whatsapp.to are required when whatsapp is enabled")
		}
	}
	if c.Discord.Enabled && c.Discord.WebhookURL == "" {
		return fmt.Errorf("discord.webhook_url is required when discord is enabled")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.SnapshotRetention <= 0 {
		return fmt.Errorf("storage.snapshot_retention must be positive")
	}
	if c.Storage.SnapshotRetention < c.Alerts.PriceLookback || c.Storage.SnapshotRetention < c.Alerts.VolumeLookback {
		return fmt.Errorf("storage.snapshot_retention must cover the longest lookback")
	}
	if c.Storage.PruneEveryCycles < 1 {
		return fmt.Errorf("storage.prune_every_cycles must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
