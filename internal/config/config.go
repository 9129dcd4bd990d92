// Package config loads sos-priors settings from config.yaml and SOS_* environment variables.
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
	Store        StoreConfig      `yaml:"store" mapstructure:"store"`
	Calendar     CalendarConfig   `yaml:"calendar" mapstructure:"calendar"`
	Fill         FillConfig       `yaml:"fill" mapstructure:"fill"`
	Fetch        FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Agencies     AgenciesConfig   `yaml:"agencies" mapstructure:"agencies"`
	PriorityFile string           `yaml:"priority_file" mapstructure:"priority_file"`
	Archive      ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Server       ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring   MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Sword        SwordConfig      `yaml:"sword" mapstructure:"sword"`
	Log          LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
}

// CalendarConfig bounds the daily grid shared by every gauge series.
// An empty End means today (UTC).
type CalendarConfig struct {
	Start string `yaml:"start" mapstructure:"start" validate:"required,datetime=2006-01-02"`
	End   string `yaml:"end" mapstructure:"end" validate:"omitempty,datetime=2006-01-02"`
}

// FillConfig holds the sentinel values written for missing data.
type FillConfig struct {
	Float  float64 `yaml:"float" mapstructure:"float"`
	Int    int     `yaml:"int" mapstructure:"int"`
	Source string  `yaml:"source" mapstructure:"source" validate:"required,max=4"`
}

// FetchConfig configures remote downloads.
type FetchConfig struct {
	UserAgent      string             `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int                `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	FTPTimeoutSecs int                `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs" validate:"gt=0"`
	Concurrency    int                `yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=64"`
	RateLimits     map[string]float64 `yaml:"rate_limits" mapstructure:"rate_limits"`
}

// AgenciesConfig locates each agency's published discharge records.
type AgenciesConfig struct {
	USGS       USGSConfig               `yaml:"usgs" mapstructure:"usgs"`
	WSC        WSCConfig                `yaml:"wsc" mapstructure:"wsc"`
	GRDC       GRDCConfig               `yaml:"grdc" mapstructure:"grdc"`
	HydroShare HydroShareConfig         `yaml:"hydroshare" mapstructure:"hydroshare"`
	Tabular    map[string]TabularConfig `yaml:"tabular" mapstructure:"tabular" validate:"dive"`
}

// USGSConfig points at the NWIS daily values service.
type USGSConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
}

// WSCConfig points at the Water Survey of Canada real-time CSV service.
type WSCConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
}

// GRDCConfig locates the GRDC daily export archive (http, ftp, file or path).
type GRDCConfig struct {
	Archive string `yaml:"archive" mapstructure:"archive"`
}

// HydroShareConfig locates HydroShare collection CSVs. {site} is replaced by the site id.
type HydroShareConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// TabularConfig describes a per-country export file. {site}, {start} and
// {end} in URL are substituted per request.
type TabularConfig struct {
	URL             string  `yaml:"url" mapstructure:"url"`
	Format          string  `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=csv xlsx"`
	Delimiter       string  `yaml:"delimiter" mapstructure:"delimiter" validate:"omitempty,len=1"`
	SkipRows        int     `yaml:"skip_rows" mapstructure:"skip_rows" validate:"gte=0"`
	DateColumn      string  `yaml:"date_column" mapstructure:"date_column" validate:"required"`
	DateLayout      string  `yaml:"date_layout" mapstructure:"date_layout" validate:"required"`
	DischargeColumn string  `yaml:"discharge_column" mapstructure:"discharge_column" validate:"required"`
	QualityColumn   string  `yaml:"quality_column" mapstructure:"quality_column"`
	// Rows are kept when their quality code is strictly greater than MinQuality.
	MinQuality      float64 `yaml:"min_quality" mapstructure:"min_quality"`
	SitePad         int     `yaml:"site_pad" mapstructure:"site_pad" validate:"gte=0"`
	Scale           float64 `yaml:"scale" mapstructure:"scale" validate:"gte=0"`

	// RejectNonPositive drops readings with discharge <= 0 for exports that
	// use zero as a no-data marker. Off by default.
	RejectNonPositive bool `yaml:"reject_non_positive" mapstructure:"reject_non_positive"`
}

// ArchiveConfig configures run report uploads to S3-compatible storage.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket" validate:"required_if=Enabled true"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the run health checker started by serve.
type MonitoringConfig struct {
	Enabled                   bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	FailureRateThreshold      float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	FetchFailureRateThreshold float64 `yaml:"fetch_failure_rate_threshold" mapstructure:"fetch_failure_rate_threshold" validate:"gte=0,lte=1"`
	LookbackWindowHours       int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"gte=1"`
	CheckIntervalSecs         int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// SwordConfig identifies the SWORD release reach ids belong to.
type SwordConfig struct {
	Version string `yaml:"version" mapstructure:"version" validate:"required"`
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

	// Environment
	v.SetEnvPrefix("SOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sos-priors.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("calendar.start", "1980-01-01")
	v.SetDefault("calendar.end", "")
	v.SetDefault("fill.float", -999999999999.0)
	v.SetDefault("fill.int", -999)
	v.SetDefault("fill.source", "xxxx")
	v.SetDefault("fetch.user_agent", "sos-priors/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.ftp_timeout_secs", 30)
	v.SetDefault("fetch.concurrency", 8)
	v.SetDefault("agencies.usgs.base_url", "https://waterservices.usgs.gov/nwis/dv/")
	v.SetDefault("agencies.wsc.base_url", "https://wateroffice.ec.gc.ca/services/real_time_data/csv/inline")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.fetch_failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.lookback_window_hours", 168)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("sword.version", "16")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	for code, tc := range defaultTabular {
		prefix := "agencies.tabular." + code + "."
		v.SetDefault(prefix+"date_column", tc.DateColumn)
		v.SetDefault(prefix+"date_layout", tc.DateLayout)
		v.SetDefault(prefix+"discharge_column", tc.DischargeColumn)
		v.SetDefault(prefix+"quality_column", tc.QualityColumn)
		v.SetDefault(prefix+"min_quality", tc.MinQuality)
		v.SetDefault(prefix+"site_pad", tc.SitePad)
		v.SetDefault(prefix+"scale", 1.0)
	}

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

// defaultTabular carries the column layouts of the per-country exports.
var defaultTabular = map[string]TabularConfig{
	"defra":    {DateColumn: "date", DateLayout: "2006-01-02", DischargeColumn: "value"},
	"abom":     {DateColumn: "Date", DateLayout: "2006-01-02", DischargeColumn: "Q", QualityColumn: "Quality Code", MinQuality: -1},
	"mlit":     {DateColumn: "Date", DateLayout: "2006-01-02", DischargeColumn: "Q"},
	"hidroweb": {DateColumn: "Date", DateLayout: "20060102", DischargeColumn: "Q"},
	"dga":      {DateColumn: "Date", DateLayout: "2006-01-02", DischargeColumn: "Q", SitePad: 8},
	"eau":      {DateColumn: "Date", DateLayout: "2006-01-02", DischargeColumn: "Q"},
	"dwa":      {DateColumn: "date", DateLayout: "2006-01-02", DischargeColumn: "Q"},
	"mefccwp":  {DateColumn: "date", DateLayout: "2006-01-02", DischargeColumn: "Q"},
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
