// Package config handles loading and validating the voicestudio configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/nadzzz/voicestudio/internal/settings"
)

// Config is the root configuration for voicestudio.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Backends   BackendsConfig   `mapstructure:"backends"`
	Voice      VoiceConfig      `mapstructure:"voice"`
	Generation GenerationConfig `mapstructure:"generation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// RemoteConfig points at the remote synthesis and emotion library service.
type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 0 = no timeout
}

// BackendsConfig enables and configures each synthesis backend.
// Candidates are always tried in the order accelerated, cpu, remote.
type BackendsConfig struct {
	Accelerated LocalBackendConfig  `mapstructure:"accelerated"`
	CPU         LocalBackendConfig  `mapstructure:"cpu"`
	Remote      RemoteBackendConfig `mapstructure:"remote"`
}

// LocalBackendConfig configures an on-device backend.
type LocalBackendConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Piper   PiperConfig `mapstructure:"piper"`
}

// RemoteBackendConfig configures the remote synthesis backend.
type RemoteBackendConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PiperConfig holds the settings of a local Piper runtime (Wyoming protocol).
//
// Endpoint is the default Wyoming TCP endpoint; Endpoints maps ISO-639-1
// codes to per-language instances and takes precedence. Voices maps either a
// studio voice name or a language code to a Piper model name.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"`
}

// VoiceConfig holds the starting voice settings and the assignment engine setup.
type VoiceConfig struct {
	Settings settings.Settings `mapstructure:"settings"`

	// Seed makes voice assignment reproducible; 0 picks a random seed.
	Seed uint64 `mapstructure:"seed"`

	// Catalog builds the voice pool from the remote GET /v1/voices listing
	// instead of the built-in pool.
	Catalog bool `mapstructure:"catalog"`
}

// GenerationConfig tunes the synthesis orchestrator.
type GenerationConfig struct {
	Concurrency int `mapstructure:"concurrency"` // lines synthesized in parallel, 1..4
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// MaxConcurrency is the upper bound on parallel line synthesis.
const MaxConcurrency = 4

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./voicestudio.yaml, ./configs/voicestudio.yaml, /etc/voicestudio/voicestudio.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voicestudio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voicestudio")
	}

	// Environment variables: VOICESTUDIO_REMOTE_BASE_URL, VOICESTUDIO_LOGGING_LEVEL, etc.
	v.SetEnvPrefix("VOICESTUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Remote.APIKey = resolveEnvRef(cfg.Remote.APIKey)
	cfg.Remote.BaseURL = resolveEnvRef(cfg.Remote.BaseURL)
	cfg.Voice.Settings = cfg.Voice.Settings.Clamped()
	if cfg.Generation.Concurrency < 1 {
		cfg.Generation.Concurrency = 1
	}
	if cfg.Generation.Concurrency > MaxConcurrency {
		cfg.Generation.Concurrency = MaxConcurrency
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := settings.Default()

	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("remote.base_url", "http://localhost:8000")
	v.SetDefault("remote.timeout_seconds", 0)
	v.SetDefault("backends.accelerated.enabled", true)
	v.SetDefault("backends.accelerated.piper.endpoint", "localhost:10201")
	v.SetDefault("backends.cpu.enabled", true)
	v.SetDefault("backends.cpu.piper.endpoint", "localhost:10200")
	v.SetDefault("backends.remote.enabled", true)
	v.SetDefault("voice.settings.temperature", d.Temperature)
	v.SetDefault("voice.settings.cfg_weight", d.CFGWeight)
	v.SetDefault("voice.settings.exaggeration", d.Exaggeration)
	v.SetDefault("voice.settings.speed", d.Speed)
	v.SetDefault("voice.settings.single_mode_emotion", d.SingleModeEmotion)
	v.SetDefault("voice.settings.auto_assign_voices", d.AutoAssignVoices)
	v.SetDefault("voice.settings.language", d.Language)
	v.SetDefault("voice.settings.inner_voice.enabled", d.InnerVoice.Enabled)
	v.SetDefault("voice.settings.inner_voice.style", string(d.InnerVoice.Style))
	v.SetDefault("voice.settings.inner_voice.mix_volume", d.InnerVoice.MixVolume)
	v.SetDefault("voice.seed", 0)
	v.SetDefault("voice.catalog", false)
	v.SetDefault("generation.concurrency", 2)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
