package app

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// SetConfigDefaults registers every configuration knob with its default.
// All scoring weights and thresholds are configuration, not constants.
func SetConfigDefaults() {
	viper.SetDefault("log.level", "info")

	viper.SetDefault("feed.path", "requests.ndjson")
	viper.SetDefault("feed.from_beginning", false)
	viper.SetDefault("feed.buffer_size", 10000)

	viper.SetDefault("demo.rate", 200)
	viper.SetDefault("demo.attack_percent", 15)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("audit.path", "audit.jsonl")
	viper.SetDefault("audit.stdout", false)

	viper.SetDefault("quarantine.db_path", "data/quarantine.db")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", ":9090")
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("eventlog.capacity", 10000)
	viper.SetDefault("eventlog.mirror_buffer", 1000)

	viper.SetDefault("responder.queue_size", 1000)
	viper.SetDefault("responder.history_size", 1000)

	viper.SetDefault("monitor.cleanup_interval_seconds", 300)
	viper.SetDefault("monitor.tracker_idle_seconds", 1800)

	viper.SetDefault("scoring.path_weight", 20.0)
	viper.SetDefault("scoring.query_weight", 15.0)
	viper.SetDefault("scoring.body_weight", 25.0)
	viper.SetDefault("scoring.header_weight", 15.0)
	viper.SetDefault("scoring.brute_force_weight", 30.0)
	viper.SetDefault("scoring.rapid_request_weight", 25.0)
	viper.SetDefault("scoring.endpoint_scan_weight", 25.0)
	viper.SetDefault("scoring.bot_ua_weight", 10.0)
	viper.SetDefault("scoring.bot_timing_weight", 10.0)
	viper.SetDefault("scoring.blocked_score", 100.0)
	viper.SetDefault("scoring.brute_force_threshold", 5)
	viper.SetDefault("scoring.brute_force_window_seconds", 600)
	viper.SetDefault("scoring.rate_limit_per_minute", 60.0)
	viper.SetDefault("scoring.scan_endpoint_threshold", 20)
	viper.SetDefault("scoring.scan_sample_size", 50)
	viper.SetDefault("scoring.regularity_threshold", 0.8)
}

// LoadConfig reads the config file (optional) and enables VIGIL_ env
// overrides. A missing file is fine; defaults carry the process.
func LoadConfig(path string) error {
	SetConfigDefaults()

	viper.SetEnvPrefix("VIGIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("vigil")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/vigil")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			log.Debug().Msg("No config file found, using defaults")
			return ValidateConfig()
		}
		if path == "" {
			log.Debug().Err(err).Msg("Config read failed, using defaults")
			return ValidateConfig()
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	log.Info().Str("file", viper.ConfigFileUsed()).Msg("Configuration loaded")
	return ValidateConfig()
}

// ValidateConfig rejects configurations that would break detection. It is
// applied both at startup and before every hot reload.
func ValidateConfig() error {
	if t := viper.GetInt("scoring.brute_force_threshold"); t < 1 {
		return &ConfigValidationError{Field: "scoring.brute_force_threshold", Value: t, Reason: "must be positive"}
	}
	if w := viper.GetInt("scoring.brute_force_window_seconds"); w < 1 {
		return &ConfigValidationError{Field: "scoring.brute_force_window_seconds", Value: w, Reason: "must be positive"}
	}
	if r := viper.GetFloat64("scoring.rate_limit_per_minute"); r <= 0 {
		return &ConfigValidationError{Field: "scoring.rate_limit_per_minute", Value: r, Reason: "must be positive"}
	}
	if t := viper.GetInt("scoring.scan_endpoint_threshold"); t < 1 {
		return &ConfigValidationError{Field: "scoring.scan_endpoint_threshold", Value: t, Reason: "must be positive"}
	}
	if n := viper.GetInt("scoring.scan_sample_size"); n < 1 {
		return &ConfigValidationError{Field: "scoring.scan_sample_size", Value: n, Reason: "must be positive"}
	}
	if r := viper.GetFloat64("scoring.regularity_threshold"); r <= 0 || r > 1 {
		return &ConfigValidationError{Field: "scoring.regularity_threshold", Value: r, Reason: "must be in (0,1]"}
	}

	for _, field := range []string{
		"scoring.path_weight", "scoring.query_weight", "scoring.body_weight",
		"scoring.header_weight", "scoring.brute_force_weight",
		"scoring.rapid_request_weight", "scoring.endpoint_scan_weight",
		"scoring.bot_ua_weight", "scoring.bot_timing_weight",
	} {
		if w := viper.GetFloat64(field); w < 0 {
			return &ConfigValidationError{Field: field, Value: w, Reason: "must not be negative"}
		}
	}

	if s := viper.GetFloat64("scoring.blocked_score"); s < 100 {
		return &ConfigValidationError{Field: "scoring.blocked_score", Value: s, Reason: "must be at least 100 so blocked subjects stay CRITICAL"}
	}

	if c := viper.GetInt("eventlog.capacity"); c < 100 {
		return &ConfigValidationError{Field: "eventlog.capacity", Value: c, Reason: "must be at least 100"}
	}
	if q := viper.GetInt("responder.queue_size"); q < 10 {
		return &ConfigValidationError{Field: "responder.queue_size", Value: q, Reason: "must be at least 10"}
	}

	return nil
}

type ConfigValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s = %v - %s", e.Field, e.Value, e.Reason)
}

// HotReloader re-applies detection configuration when the config file
// changes. Invalid reloads are rejected and the running config is kept.
type HotReloader struct {
	apply func()

	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewHotReloader takes the apply callback that swaps the validated new
// configuration into the running components (scorer weights, monitor
// thresholds).
func NewHotReloader(apply func()) *HotReloader {
	return &HotReloader{
		apply:    apply,
		stopChan: make(chan struct{}),
	}
}

func (h *HotReloader) StartWatching() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed, reloading...")
		h.reload()
	})

	viper.WatchConfig()
	log.Info().Msg("Config hot reload watching started")
}

func (h *HotReloader) reload() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := viper.ReadInConfig(); err != nil {
		log.Error().Err(err).Msg("Failed to re-read config, keeping current configuration")
		return
	}
	if err := ValidateConfig(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration, rejecting reload")
		return
	}
	if h.apply != nil {
		h.apply()
	}
	log.Info().Msg("Configuration hot-reloaded")
}

func (h *HotReloader) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
		log.Info().Msg("Config hot reload watcher stopped")
	})
}
