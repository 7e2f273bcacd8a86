package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Error is a configuration problem found before any capture starts.
type Error struct {
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &Error{Err: fmt.Errorf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a configuration error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	LogFile  string
	LogSQL   bool

	// HTTPAddr enables the status server when non-empty.
	HTTPAddr string

	ConfigFile string
	File       FileConfig

	Stations []string
	// Repeat is zero when a single pass is requested.
	Repeat time.Duration

	JSONFile   string
	OutputFile string

	PublishMQTT bool
	Windrose    bool
	// WindroseTopic overrides the topic derived from mqtt_windrose_root.
	WindroseTopic string
	Database      bool
}

const defaultConfigFile = "config.yaml"

// LoadFromEnv reads settings from the environment (and an optional .env file),
// then loads the configuration file they point at.
func LoadFromEnv() (Config, error) {
	// Variables already set in the environment win over .env entries.
	_ = godotenv.Load()

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, invalid("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, &Error{Err: err}
	}

	logSQL, err := parseBool("LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	configFile := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	explicitConfig := configFile != ""
	if !explicitConfig {
		configFile = defaultConfigFile
	}

	stations, err := stationsFromEnv()
	if err != nil {
		return Config{}, err
	}

	var repeat time.Duration
	if s := strings.TrimSpace(os.Getenv("REPEAT")); s != "" {
		repeat, err = ParseRepeat(s)
		if err != nil {
			return Config{}, err
		}
	}

	publishMQTT, err := parseBool("PUBLISH_MQTT", false)
	if err != nil {
		return Config{}, err
	}
	database, err := parseBool("DATABASE", false)
	if err != nil {
		return Config{}, err
	}

	var windrose bool
	var windroseTopic string
	switch w := strings.TrimSpace(os.Getenv("WINDROSE")); strings.ToLower(w) {
	case "", "false", "0", "no":
	case "true", "1", "yes":
		windrose = true
	default:
		windrose, windroseTopic = true, w
	}

	outputFile := strings.TrimSpace(os.Getenv("OUTPUT_FILE"))
	if _, set := os.LookupEnv("OUTPUT_FILE"); set && outputFile == "" {
		return Config{}, invalid("OUTPUT_FILE requires a filename")
	}

	cfg := Config{
		AppEnv:        appEnv,
		LogLevel:      level,
		LogFile:       strings.TrimSpace(os.Getenv("LOG_FILE")),
		LogSQL:        logSQL,
		HTTPAddr:      strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		ConfigFile:    configFile,
		Stations:      stations,
		Repeat:        repeat,
		JSONFile:      strings.TrimSpace(os.Getenv("JSON_FILE")),
		OutputFile:    outputFile,
		PublishMQTT:   publishMQTT,
		Windrose:      windrose,
		WindroseTopic: windroseTopic,
		Database:      database,
	}

	file, err := LoadFile(configFile)
	switch {
	case err == nil:
		cfg.File = file
	case errors.Is(err, os.ErrNotExist) && !explicitConfig && !cfg.needsConfigFile():
		cfg.File = FileConfig{}
	case errors.Is(err, os.ErrNotExist):
		return Config{}, invalid("configuration file %q not found", configFile)
	default:
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) needsConfigFile() bool {
	return c.PublishMQTT || c.Windrose || c.Database
}

// Validate checks that every enabled sink has the keys it needs.
func (c Config) Validate() error {
	if len(c.Stations) == 0 {
		return invalid("no stations configured (set STATIONS or STATIONS_FILE)")
	}
	if c.PublishMQTT || c.Windrose {
		for _, key := range []string{"mqtt_server", "mqtt_port", "mqtt_root"} {
			if !c.File.Has(key) {
				return invalid("missing required MQTT configuration parameter %q in %q", key, c.ConfigFile)
			}
		}
		if c.File.MQTTPort <= 0 || c.File.MQTTPort > 65535 {
			return invalid("invalid mqtt_port %d in %q", c.File.MQTTPort, c.ConfigFile)
		}
	}
	if c.Windrose && c.WindroseTopic == "" && strings.TrimSpace(c.File.MQTTWindroseRoot) == "" {
		return invalid("windrose root topic is not set in %q (mqtt_windrose_root)", c.ConfigFile)
	}
	if c.Database && strings.TrimSpace(c.File.DatabaseFile) == "" && strings.TrimSpace(c.File.DatabaseURL) == "" {
		return invalid("missing required database configuration parameter %q in %q", "database_file", c.ConfigFile)
	}
	return nil
}

// ParseRepeat parses "<n>m" (minutes, at least 5) or "<n>d" (days, at least 1).
func ParseRepeat(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, invalid("invalid repeat %q: use '5m' for minutes or '1d' for days", s)
	}
	num, unit := s[:len(s)-1], s[len(s)-1]
	for _, r := range num {
		if r < '0' || r > '9' {
			return 0, invalid("invalid repeat %q: use '5m' for minutes or '1d' for days", s)
		}
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, invalid("invalid repeat %q: %w", s, err)
	}
	var per time.Duration
	switch unit {
	case 'm':
		if n < 5 {
			return 0, invalid("invalid repeat %q: the repeat delay must be at least 5 minutes", s)
		}
		per = time.Minute
	case 'd':
		if n < 1 {
			return 0, invalid("invalid repeat %q: the repeat delay must be at least 1 day", s)
		}
		per = 24 * time.Hour
	default:
		return 0, invalid("invalid repeat %q: use '5m' for minutes or '1d' for days", s)
	}
	if int64(n) > math.MaxInt64/int64(per) {
		return 0, invalid("invalid repeat %q: the repeat delay is too long", s)
	}
	return time.Duration(n) * per, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	switch strings.ToLower(s) {
	case "true", "1", "yes", "y", "t":
		return true, nil
	case "false", "0", "no", "n", "f":
		return false, nil
	}
	return def, invalid("invalid %s %q (allowed: true, false)", key, s)
}

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
