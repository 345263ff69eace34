package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type AppConfig struct {
	AppEnv   string     `validate:"oneof=dev prod"`
	LogLevel slog.Level `validate:"-"`
	Port     string     `validate:"required,numeric"`

	// ForecastURL is the single endpoint every fetch cycle requests.
	ForecastURL string        `validate:"required,url"`
	HTTPTimeout time.Duration `validate:"gt=0"`

	// Cadences.
	FetchInterval     time.Duration `validate:"gt=0"`
	FetchPollInterval time.Duration `validate:"gt=0,ltefield=FetchInterval"`
	ResyncInterval    time.Duration `validate:"gt=0"`
	RedrawInterval    time.Duration `validate:"gt=0,lt=1s"`

	// Region rule offsets in seconds.
	StandardOffset int `validate:"gte=-50400,lte=50400"`
	DaylightOffset int `validate:"gte=-50400,lte=50400"`

	// BreakerTripAfter opens the fetch circuit breaker after this many
	// consecutive failures (0 = never).
	BreakerTripAfter uint32

	DiagCapacity int `validate:"gte=0"`

	// Optional sinks; empty disables them.
	ChartPath    string
	MQTTBroker   string
	MQTTPort     int    `validate:"gt=0,lte=65535"`
	MQTTClientID string `validate:"required_with=MQTTBroker"`
	MQTTTopic    string `validate:"required_with=MQTTBroker"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}

	cfg.AppEnv = strings.TrimSpace(getenvDefault("APP_ENV", "dev"))

	level, err := parseLogLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.ForecastURL = getenvDefault("FORECAST_URL", defaultForecastURL)

	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"HTTP_TIMEOUT", "30s", &cfg.HTTPTimeout},
		{"FETCH_INTERVAL", "5m", &cfg.FetchInterval},
		{"FETCH_POLL_INTERVAL", "1s", &cfg.FetchPollInterval},
		{"RESYNC_INTERVAL", "24h", &cfg.ResyncInterval},
		{"REDRAW_INTERVAL", "250ms", &cfg.RedrawInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	cfg.StandardOffset = getenvInt("TZ_STANDARD_OFFSET", 7200)
	cfg.DaylightOffset = getenvInt("TZ_DAYLIGHT_OFFSET", 10800)
	cfg.BreakerTripAfter = uint32(max(getenvInt("BREAKER_TRIP_AFTER", 0), 0))
	cfg.DiagCapacity = getenvInt("DIAG_CAPACITY", 256)

	cfg.ChartPath = os.Getenv("CHART_PATH")
	cfg.MQTTBroker = os.Getenv("MQTT_BROKER")
	cfg.MQTTPort = getenvInt("MQTT_PORT", 1883)
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "forecast-display")
	cfg.MQTTTopic = getenvDefault("MQTT_TOPIC", "display/forecast")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

const defaultForecastURL = "https://opendata.fmi.fi/wfs?service=WFS&version=2.0.0&request=getFeature&storedquery_id=fmi::forecast::harmonie::surface::point::multipointcoverage&place=Jorvi,Espoo&parameters=Temperature"

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
