// Package conf holds logwatch's settings and loads them with viper from a
// YAML file, LOGWATCH_* environment variables and command-line flags, in
// increasing order of precedence.
package conf

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// LOGWATCH_ALERT_THRESHOLD.
const EnvPrefix = "LOGWATCH"

// Config file lookup when no explicit path is given.
const (
	configName = "logwatch"
	configType = "yaml"
)

// History drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

var (
	// ErrInvalidSettings is returned by Validate.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrConfigFile is returned when a config file exists but cannot be used.
	ErrConfigFile = errors.New("failed to read config file")
)

// Settings is the full logwatch configuration.
type Settings struct {
	Store   StoreSettings   `mapstructure:"store" yaml:"store"`
	Alert   AlertSettings   `mapstructure:"alert" yaml:"alert"`
	Summary SummarySettings `mapstructure:"summary" yaml:"summary"`
	Log     LogSettings     `mapstructure:"log" yaml:"log"`
	HTTP    HTTPSettings    `mapstructure:"http" yaml:"http"`
	History HistorySettings `mapstructure:"history" yaml:"history"`
	MQTT    MQTTSettings    `mapstructure:"mqtt" yaml:"mqtt"`
	Notify  NotifySettings  `mapstructure:"notify" yaml:"notify"`
	Sentry  SentrySettings  `mapstructure:"sentry" yaml:"sentry"`
}

// StoreSettings bounds the in-memory counter store.
type StoreSettings struct {
	MaxSeriesLength int `mapstructure:"max_series_length" yaml:"max_series_length"`
}

// AlertSettings configures the high-traffic alert.
type AlertSettings struct {
	Threshold float64  `mapstructure:"threshold" yaml:"threshold"` // requests per second
	Window    Duration `mapstructure:"window" yaml:"window"`
}

// SummarySettings configures the periodic traffic summary.
type SummarySettings struct {
	Interval    Duration `mapstructure:"interval" yaml:"interval"`
	Window      Duration `mapstructure:"window" yaml:"window"`
	Interesting []string `mapstructure:"interesting" yaml:"interesting"`
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// HTTPSettings enables the status API when Listen is set.
type HTTPSettings struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// HistorySettings enables the alert history journal when DSN is set.
type HistorySettings struct {
	Driver    string   `mapstructure:"driver" yaml:"driver"`
	DSN       string   `mapstructure:"dsn" yaml:"dsn"`
	Retention Duration `mapstructure:"retention" yaml:"retention"`
}

// MQTTSettings enables publishing alert events when Broker is set.
type MQTTSettings struct {
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// NotifySettings lists shoutrrr service URLs to notify on alerts.
type NotifySettings struct {
	URLs      []string `mapstructure:"urls" yaml:"urls"`
	Summaries bool     `mapstructure:"summaries" yaml:"summaries"`
}

// SentrySettings enables error reporting when DSN is set.
type SentrySettings struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Store: StoreSettings{MaxSeriesLength: 100},
		Alert: AlertSettings{
			Threshold: 10,
			Window:    Duration(120 * time.Second),
		},
		Summary: SummarySettings{
			Interval:    Duration(10 * time.Second),
			Window:      Duration(10 * time.Second),
			Interesting: []string{"404", "500"},
		},
		Log:     LogSettings{Level: "info", Format: "text"},
		History: HistorySettings{Driver: DriverSQLite, Retention: Duration(720 * time.Hour)},
		MQTT:    MQTTSettings{Topic: "logwatch/alerts", ClientID: "logwatch"},
		Notify:  NotifySettings{URLs: []string{}},
	}
}

// FlagKeys maps command-line flag names to the settings keys they override.
var FlagKeys = map[string]string{
	"max-series-length": "store.max_series_length",
	"threshold":         "alert.threshold",
	"alert-window":      "alert.window",
	"summary-interval":  "summary.interval",
	"summary-window":    "summary.window",
	"interesting":       "summary.interesting",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"listen":            "http.listen",
	"history-db":        "history.dsn",
	"mqtt-broker":       "mqtt.broker",
	"notify-url":        "notify.urls",
}

// NewViper returns a viper instance carrying the defaults and reading
// LOGWATCH_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key so environment variables are seen by
// Unmarshal even when no config file mentions them.
func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("store.max_series_length", d.Store.MaxSeriesLength)
	v.SetDefault("alert.threshold", d.Alert.Threshold)
	v.SetDefault("alert.window", d.Alert.Window.String())
	v.SetDefault("summary.interval", d.Summary.Interval.String())
	v.SetDefault("summary.window", d.Summary.Window.String())
	v.SetDefault("summary.interesting", d.Summary.Interesting)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("http.listen", d.HTTP.Listen)
	v.SetDefault("history.driver", d.History.Driver)
	v.SetDefault("history.dsn", d.History.DSN)
	v.SetDefault("history.retention", d.History.Retention.String())
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("notify.urls", d.Notify.URLs)
	v.SetDefault("notify.summaries", d.Notify.Summaries)
	v.SetDefault("sentry.dsn", d.Sentry.DSN)
}

// Load reads configFile, or logwatch.yaml from the working directory or
// $HOME/.config/logwatch when configFile is empty, and returns validated
// settings. A missing default config file is not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/logwatch")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %w", ErrConfigFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.normalize()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// normalize trims list entries that arrive with padding from env or flags.
func (s *Settings) normalize() {
	s.Summary.Interesting = compact(s.Summary.Interesting)
	s.Notify.URLs = compact(s.Notify.URLs)
	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))
	s.History.Driver = strings.ToLower(strings.TrimSpace(s.History.Driver))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks the settings for values the monitor cannot run with.
func (s *Settings) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidSettings}, args...)...))
	}

	if s.Store.MaxSeriesLength <= 0 {
		add("store.max_series_length must be positive, got %d", s.Store.MaxSeriesLength)
	}
	if s.Alert.Threshold <= 0 {
		add("alert.threshold must be positive, got %g", s.Alert.Threshold)
	}
	checkWindow := func(key string, d Duration) {
		if d.Std() < time.Second || !d.IsWholeSeconds() {
			add("%s must be a whole number of seconds of at least 1s, got %s", key, d)
		}
	}
	checkWindow("alert.window", s.Alert.Window)
	checkWindow("summary.window", s.Summary.Window)
	checkWindow("summary.interval", s.Summary.Interval)

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, s.Log.Level) {
		add("log.level must be one of debug, info, warn, error; got %q", s.Log.Level)
	}
	if !slices.Contains([]string{"text", "json"}, s.Log.Format) {
		add("log.format must be text or json, got %q", s.Log.Format)
	}
	if s.History.DSN != "" && !slices.Contains([]string{DriverSQLite, DriverMySQL}, s.History.Driver) {
		add("history.driver must be sqlite or mysql, got %q", s.History.Driver)
	}
	if s.History.Retention < 0 {
		add("history.retention must not be negative, got %s", s.History.Retention)
	}
	if s.MQTT.Broker != "" && s.MQTT.Topic == "" {
		add("mqtt.topic is required when mqtt.broker is set")
	}

	return errors.Join(errs...)
}

// YAML renders the settings as a config file.
func (s *Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
