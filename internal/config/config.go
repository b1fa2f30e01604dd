package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sdrtools/boombox/internal/pipeline"
)

type Config struct {
	Radio   RadioConfig   `yaml:"radio"`
	Session SessionConfig `yaml:"session"`
	Art     ArtConfig     `yaml:"art"`
	Playlog PlaylogConfig `yaml:"playlog"`
	Paths   PathsConfig   `yaml:"paths"`
	Logging LoggingConfig `yaml:"logging"`
}

type RadioConfig struct {
	// Gain in dB. Zero means hardware auto gain.
	Gain float64 `yaml:"gain"`
	// PPM frequency correction for the tuner crystal.
	PPM int `yaml:"ppm"`
	// DeviceIndex selects among multiple RTL dongles. Nil means default.
	DeviceIndex *int `yaml:"device_index"`

	DecoderBinary     string `yaml:"decoder_binary"`
	DemodulatorBinary string `yaml:"demodulator_binary"`
	PlayerBinary      string `yaml:"player_binary"`
}

type SessionConfig struct {
	FallbackTimeoutMs int `yaml:"fallback_timeout_ms"`
	MetaQuietMs       int `yaml:"meta_quiet_ms"`
	// NoFallback disables the analog fallback on acquisition timeout.
	NoFallback bool `yaml:"no_fallback"`
}

func (s SessionConfig) FallbackTimeout() time.Duration {
	return time.Duration(s.FallbackTimeoutMs) * time.Millisecond
}

func (s SessionConfig) MetaQuiet() time.Duration {
	return time.Duration(s.MetaQuietMs) * time.Millisecond
}

type ArtConfig struct {
	Disabled     bool `yaml:"disabled"`
	FetchDelayMs int  `yaml:"fetch_delay_ms"`
	KeepCount    int  `yaml:"keep_count"`
}

func (a ArtConfig) FetchDelay() time.Duration {
	return time.Duration(a.FetchDelayMs) * time.Millisecond
}

type PlaylogConfig struct {
	Disabled       bool `yaml:"disabled"`
	MetaDelayMs    int  `yaml:"meta_delay_ms"`
	MinPlaySeconds int  `yaml:"min_play_seconds"`
	MaxRows        int  `yaml:"max_rows"`
}

func (p PlaylogConfig) MetaDelay() time.Duration {
	return time.Duration(p.MetaDelayMs) * time.Millisecond
}

func (p PlaylogConfig) MinPlay() time.Duration {
	return time.Duration(p.MinPlaySeconds) * time.Second
}

type PathsConfig struct {
	DataDir     string `yaml:"data_dir"`
	LotDir      string `yaml:"lot_dir"`
	ArtDir      string `yaml:"art_dir"`
	PresetsFile string `yaml:"presets_file"`
	HistoryFile string `yaml:"history_file"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	bins := pipeline.DefaultBinaries()
	return &Config{
		Radio: RadioConfig{
			DecoderBinary:     bins.Decoder,
			DemodulatorBinary: bins.Demodulator,
			PlayerBinary:      bins.Player,
		},
		Session: SessionConfig{
			FallbackTimeoutMs: 6000,
			MetaQuietMs:       350,
		},
		Art: ArtConfig{
			FetchDelayMs: 3000,
			KeepCount:    50,
		},
		Playlog: PlaylogConfig{
			MetaDelayMs:    2000,
			MinPlaySeconds: 45,
			MaxRows:        10000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// if given, then .env / environment overrides, then derived paths.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config")
		}
	}

	// A .env beside the binary is optional.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BOOMBOX_GAIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Radio.Gain = f
		}
	}
	if v := os.Getenv("BOOMBOX_PPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Radio.PPM = n
		}
	}
	if v := os.Getenv("BOOMBOX_DEVICE_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Radio.DeviceIndex = &n
		}
	}
	if v := os.Getenv("BOOMBOX_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("BOOMBOX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BOOMBOX_NO_FALLBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Session.NoFallback = b
		}
	}
}

func (c *Config) fillPaths() error {
	if c.Paths.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "resolving home dir")
		}
		c.Paths.DataDir = filepath.Join(home, ".boombox")
	}
	if c.Paths.LotDir == "" {
		c.Paths.LotDir = filepath.Join(c.Paths.DataDir, "lot")
	}
	if c.Paths.ArtDir == "" {
		c.Paths.ArtDir = filepath.Join(c.Paths.DataDir, "art")
	}
	if c.Paths.PresetsFile == "" {
		c.Paths.PresetsFile = filepath.Join(c.Paths.DataDir, "presets.json")
	}
	if c.Paths.HistoryFile == "" {
		c.Paths.HistoryFile = filepath.Join(c.Paths.DataDir, "history.db")
	}
	return nil
}

// Validate checks for values no component can work with.
func (c *Config) Validate() error {
	if c.Radio.DecoderBinary == "" || c.Radio.DemodulatorBinary == "" || c.Radio.PlayerBinary == "" {
		return errors.New("config: all three pipeline binaries must be set")
	}
	if c.Session.FallbackTimeoutMs <= 0 {
		return errors.New("config: fallback_timeout_ms must be positive")
	}
	if c.Session.MetaQuietMs <= 0 {
		return errors.New("config: meta_quiet_ms must be positive")
	}
	if c.Art.KeepCount < 0 || c.Playlog.MaxRows < 0 {
		return errors.New("config: counts must not be negative")
	}
	return nil
}

// EnsureDirs creates the data directories the components write into.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LotDir, c.Paths.ArtDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	return nil
}
