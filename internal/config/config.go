package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Feeds      FeedsConfig      `yaml:"feeds" mapstructure:"feeds"`
	Sheets     SheetsConfig     `yaml:"sheets" mapstructure:"sheets"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	Outreach   OutreachConfig   `yaml:"outreach" mapstructure:"outreach"`
	Targets    TargetsConfig    `yaml:"targets" mapstructure:"targets"`
	Venues     VenuesConfig     `yaml:"venues" mapstructure:"venues"`
	Health     HealthConfig     `yaml:"health" mapstructure:"health"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the local data directory and the append-only edit
// logs replayed on every reconciliation run.
type DataConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	ManualLog   string `yaml:"manual_log" mapstructure:"manual_log"`
	DetailsLog  string `yaml:"details_log" mapstructure:"details_log"`
	RevenueLog  string `yaml:"revenue_log" mapstructure:"revenue_log"`
	OutreachLog string `yaml:"outreach_log" mapstructure:"outreach_log"`
	Manifest    string `yaml:"manifest" mapstructure:"manifest"`
}

// FeedsConfig overrides feed source locations. Keys are feed names;
// values are local paths, http(s):// or ftp:// URLs, or Google Sheets
// URLs. Feeds without an override use their default filename under the
// data directory.
type FeedsConfig struct {
	Sources  map[string]string `yaml:"sources" mapstructure:"sources"`
	Disabled []string          `yaml:"disabled" mapstructure:"disabled"`
}

// SheetsConfig holds Google Sheets API settings.
type SheetsConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds credentials for the authoritative remote master.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	RidersDB string `yaml:"riders_db" mapstructure:"riders_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the CRM
// contact feed.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// AnthropicConfig holds Anthropic API settings for reply drafting.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// StoreConfig configures the snapshot store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SMTPConfig configures optional rescue email sending.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// OutreachConfig configures outreach message generation and the rescue
// follow-up windows.
type OutreachConfig struct {
	SenderName         string `yaml:"sender_name" mapstructure:"sender_name"`
	RescueBlueprintHrs int    `yaml:"rescue_blueprint_hours" mapstructure:"rescue_blueprint_hours"`
	RescueDay1Hrs      int    `yaml:"rescue_day1_hours" mapstructure:"rescue_day1_hours"`
	RescueDay2Hrs      int    `yaml:"rescue_day2_hours" mapstructure:"rescue_day2_hours"`
}

// TargetsConfig holds the revenue goal and the funnel conversion-rate
// assumptions used for pipeline projections.
type TargetsConfig struct {
	MonthlyRevenue    float64 `yaml:"monthly_revenue" mapstructure:"monthly_revenue"`
	DealValue         float64 `yaml:"deal_value" mapstructure:"deal_value"`
	ContactToReply    float64 `yaml:"contact_to_reply" mapstructure:"contact_to_reply"`
	ReplyToRegistered float64 `yaml:"reply_to_registered" mapstructure:"reply_to_registered"`
	RegisteredToDay2  float64 `yaml:"registered_to_day2" mapstructure:"registered_to_day2"`
	Day2ToCall        float64 `yaml:"day2_to_call" mapstructure:"day2_to_call"`
	CallToClient      float64 `yaml:"call_to_client" mapstructure:"call_to_client"`
}

// VenuesConfig locates the circuit shapefile.
type VenuesConfig struct {
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
}

// HealthConfig holds data-quality alert thresholds.
type HealthConfig struct {
	MissingEmailRatio float64 `yaml:"missing_email_ratio" mapstructure:"missing_email_ratio"`
	StallDays         int     `yaml:"stall_days" mapstructure:"stall_days"`
	// WebhookURL receives failed checks after a run; empty disables it.
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.funnel-cli")

	// Environment
	v.SetEnvPrefix("FUNNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.manual_log", "manual_updates.csv")
	v.SetDefault("data.details_log", "rider_details.csv")
	v.SetDefault("data.revenue_log", "revenue_log.csv")
	v.SetDefault("data.outreach_log", "outreach_log.csv")
	v.SetDefault("data.manifest", "feeds.yaml")
	v.SetDefault("sheets.base_url", "https://sheets.googleapis.com/v4")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "funnel.db")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("outreach.sender_name", "Craig")
	v.SetDefault("outreach.rescue_blueprint_hours", 24)
	v.SetDefault("outreach.rescue_day1_hours", 24)
	v.SetDefault("outreach.rescue_day2_hours", 12)
	v.SetDefault("targets.monthly_revenue", 15000)
	v.SetDefault("targets.deal_value", 4000)
	v.SetDefault("targets.contact_to_reply", 0.08)
	v.SetDefault("targets.reply_to_registered", 0.70)
	v.SetDefault("targets.registered_to_day2", 0.60)
	v.SetDefault("targets.day2_to_call", 0.40)
	v.SetDefault("targets.call_to_client", 0.25)
	v.SetDefault("health.missing_email_ratio", 0.5)
	v.SetDefault("health.stall_days", 14)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
