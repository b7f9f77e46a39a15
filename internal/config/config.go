// Package config loads knolcards settings from defaults, an optional YAML
// file, KNOLCARDS_* environment variables and command line flags, in that
// order of precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"

	"github.com/conorfennell/knolcards/internal/domain"
)

// EnvPrefix marks the environment variables read by Load. A double
// underscore separates nesting levels: KNOLCARDS_SCHEDULE__MAX_DELAY.
const EnvPrefix = "KNOLCARDS_"

type Config struct {
	DB       DBConfig       `koanf:"db"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Log      LogConfig      `koanf:"log"`
	Import   ImportConfig   `koanf:"import"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"notblank"`
}

type ScheduleConfig struct {
	// MaxDelay caps every schedule; coefficients are not allowed.
	MaxDelay string `koanf:"max_delay" validate:"maxdelay"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type ImportConfig struct {
	// ReposDir holds clones of git sources.
	ReposDir string `koanf:"repos_dir" validate:"notblank"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DB:       DBConfig{Path: "knolcards.db"},
		Schedule: ScheduleConfig{MaxDelay: "30d"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Import:   ImportConfig{ReposDir: "repos"},
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"db":         "db.path",
	"max-delay":  "schedule.max_delay",
	"log-level":  "log.level",
	"log-format": "log.format",
	"repos-dir":  "import.repos_dir",
}

// RegisterFlags adds the config flags, and --config, to fs.
func RegisterFlags(fs *flag.FlagSet) {
	d := Default()
	fs.String("config", "", "path to a YAML config file")
	fs.String("db", d.DB.Path, "path to the SQLite database")
	fs.String("max-delay", d.Schedule.MaxDelay, "longest delay any card can be scheduled for")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "log format: text or json")
	fs.String("repos-dir", d.Import.ReposDir, "directory for git source clones")
}

// Load builds the configuration. path may be empty; fs may be nil.
func Load(path string, fs *flag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		p := posflag.ProviderWithFlag(fs, ".", k, func(f *flag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Schedule.MaxDelay = strings.TrimSpace(cfg.Schedule.MaxDelay)
	if err := domain.NewValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Logger builds a slog logger writing to w.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	// Validated by Load.
	_ = level.UnmarshalText([]byte(c.Level))
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
