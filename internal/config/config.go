// Package config loads launchk settings from TOML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deepakjacob/launchk/internal/domain"
	"github.com/deepakjacob/launchk/internal/infra"
)

const (
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "LAUNCHK_CONFIG"
	// EnvLogLevel overrides log_level.
	EnvLogLevel = "LAUNCHK_LOG_LEVEL"

	DefaultPollInterval          = time.Second
	DefaultConfigRefreshInterval = 10 * time.Second
	DefaultLogLevel              = "info"
)

// Config is the resolved runtime configuration.
type Config struct {
	PollInterval          time.Duration
	ConfigRefreshInterval time.Duration
	Editor                string
	Pager                 string
	JobTypeFilter         domain.JobTypeFilter
	ExtraPlistDirs        []string
	LogPath               string
	LogLevel              string
	JournalEnabled        bool

	// Path is the file the config was read from, empty if defaults only.
	Path string
	Mode *infra.ExecModeConfig
}

// Duration decodes TOML strings such as "500ms" or "2s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// fileConfig maps config.toml keys.
type fileConfig struct {
	PollInterval          Duration `toml:"poll_interval"`
	ConfigRefreshInterval Duration `toml:"config_refresh_interval"`
	Editor                string   `toml:"editor"`
	Pager                 string   `toml:"pager"`
	JobTypeFilter         []string `toml:"job_type_filter"`
	ExtraPlistDirs        []string `toml:"extra_plist_dirs"`
	LogPath               string   `toml:"log_path"`
	LogLevel              string   `toml:"log_level"`
	Journal               bool     `toml:"journal"`
}

// Default returns the configuration used when no file exists.
func Default(mode *infra.ExecModeConfig) Config {
	return Config{
		PollInterval:          DefaultPollInterval,
		ConfigRefreshInterval: DefaultConfigRefreshInterval,
		LogPath:               mode.LogPath,
		LogLevel:              DefaultLogLevel,
		JournalEnabled:        true,
		Mode:                  mode,
	}
}

// DefaultPath returns $LAUNCHK_CONFIG or ~/.config/launchk/config.toml.
func DefaultPath(mode *infra.ExecModeConfig) string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return filepath.Join(mode.HomeDir, ".config", "launchk", "config.toml")
}

// Load reads path (or DefaultPath when empty) over the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(path string, mode *infra.ExecModeConfig) (Config, error) {
	cfg := Default(mode)
	if path == "" {
		path = DefaultPath(mode)
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	switch {
	case err == nil:
		cfg.Path = path
		if err := overlay(&cfg, raw, meta); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func overlay(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("poll_interval") {
		if raw.PollInterval.Duration <= 0 {
			return fmt.Errorf("poll_interval must be positive")
		}
		cfg.PollInterval = raw.PollInterval.Duration
	}
	if meta.IsDefined("config_refresh_interval") {
		if raw.ConfigRefreshInterval.Duration <= 0 {
			return fmt.Errorf("config_refresh_interval must be positive")
		}
		cfg.ConfigRefreshInterval = raw.ConfigRefreshInterval.Duration
	}
	if meta.IsDefined("editor") {
		cfg.Editor = strings.TrimSpace(raw.Editor)
	}
	if meta.IsDefined("pager") {
		cfg.Pager = strings.TrimSpace(raw.Pager)
	}
	if meta.IsDefined("job_type_filter") {
		f, err := domain.ParseJobTypeFilter(raw.JobTypeFilter)
		if err != nil {
			return err
		}
		cfg.JobTypeFilter = f
	}
	if meta.IsDefined("extra_plist_dirs") {
		for _, d := range raw.ExtraPlistDirs {
			cfg.ExtraPlistDirs = append(cfg.ExtraPlistDirs, expandHome(strings.TrimSpace(d), cfg.Mode.HomeDir))
		}
	}
	if meta.IsDefined("log_path") {
		cfg.LogPath = expandHome(strings.TrimSpace(raw.LogPath), cfg.Mode.HomeDir)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("journal") {
		cfg.JournalEnabled = raw.Journal
	}
	return nil
}

// applyEnv lets EDITOR and PAGER fill in what the file left unset, and
// LAUNCHK_LOG_LEVEL always win.
func applyEnv(cfg *Config) {
	if cfg.Editor == "" {
		cfg.Editor = strings.TrimSpace(os.Getenv("EDITOR"))
	}
	if cfg.Pager == "" {
		cfg.Pager = strings.TrimSpace(os.Getenv("PAGER"))
	}
	if lvl := strings.TrimSpace(os.Getenv(EnvLogLevel)); lvl != "" {
		cfg.LogLevel = lvl
	}
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		return home
	}
	return path
}

// NewLogger builds a JSON file logger. Stdout belongs to the UI, so when
// the log file cannot be opened logging is disabled rather than redirected.
func (c Config) NewLogger() *zap.Logger {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{c.LogPath}
	config.ErrorOutputPaths = []string{c.LogPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if dir := filepath.Dir(c.LogPath); dir != "" {
		_ = os.MkdirAll(dir, 0755)
	}

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
