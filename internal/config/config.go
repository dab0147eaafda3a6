// Package config loads settings from defaults, ~/.vitruvian/config.yaml, VITRUVIAN_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "VITRUVIAN"
	configDirName  = ".vitruvian"
	configBaseName = "config"
)

var ErrInvalidConfig = errors.New("invalid config")

// Link kinds
const (
	LinkBLE       = "ble"
	LinkWebSocket = "ws"
	LinkSim       = "sim"
	LinkReplay    = "replay"
)

var linkKinds = []string{LinkBLE, LinkWebSocket, LinkSim, LinkReplay}

type Config struct {
	Link     LinkConfig     `mapstructure:"link"`
	Workout  WorkoutConfig  `mapstructure:"workout"`
	AutoStop AutoStopConfig `mapstructure:"autostop"`
	Handles  HandlesConfig  `mapstructure:"handles"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Sim      SimConfig      `mapstructure:"sim"`
	Log      LogConfig      `mapstructure:"log"`
}

type LinkConfig struct {
	Kind          string        `mapstructure:"kind"`
	Address       string        `mapstructure:"address"` // BLE address; empty picks the strongest machine
	URL           string        `mapstructure:"url"`
	SkipTLSVerify bool          `mapstructure:"skip_tls_verify"`
	Framing       string        `mapstructure:"framing"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ScanTimeout   time.Duration `mapstructure:"scan_timeout"`
	Capture       string        `mapstructure:"capture"` // replay source
	Paced         bool          `mapstructure:"paced"`
}

type WorkoutConfig struct {
	Mode             string  `mapstructure:"mode"` // a program mode name, or "echo"
	WeightKg         float64 `mapstructure:"weight_kg"`
	EchoLevel        string  `mapstructure:"echo_level"`
	EccentricLoad    int     `mapstructure:"eccentric_load"`
	WarmupReps       int     `mapstructure:"warmup_reps"`
	WorkingReps      int     `mapstructure:"working_reps"`
	JustLift         bool    `mapstructure:"just_lift"`
	StopAtTop        bool    `mapstructure:"stop_at_top"`
	AMRAP            bool    `mapstructure:"amrap"`
	CountdownSeconds int     `mapstructure:"countdown_seconds"`
	SkipCountdown    bool    `mapstructure:"skip_countdown"`
}

type AutoStopConfig struct {
	Grace           time.Duration `mapstructure:"grace"`
	RestVelocity    float64       `mapstructure:"rest_velocity"`
	MinRange        int           `mapstructure:"min_range"`
	ReleaseDistance int           `mapstructure:"release_distance"`
}

type HandlesConfig struct {
	AutoStart        bool `mapstructure:"auto_start"`
	Threshold        int  `mapstructure:"threshold"`
	CountdownSeconds int  `mapstructure:"countdown_seconds"`
}

type FilterConfig struct {
	SpikeThreshold int `mapstructure:"spike_threshold"`
}

type SimConfig struct {
	Listen      string        `mapstructure:"listen"` // serve the simulator as a relay on this address
	Interval    time.Duration `mapstructure:"interval"`
	RepDuration time.Duration `mapstructure:"rep_duration"`
	WorkingReps int           `mapstructure:"working_reps"`
	AutoLift    bool          `mapstructure:"auto_lift"`
	SpikeEvery  int           `mapstructure:"spike_every"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Stderr     bool   `mapstructure:"stderr"`
}

// SetDefaults registers every key so environment variables can override all of them
func SetDefaults(v *viper.Viper) {
	v.SetDefault("link.kind", LinkBLE)
	v.SetDefault("link.address", "")
	v.SetDefault("link.url", "")
	v.SetDefault("link.skip_tls_verify", false)
	v.SetDefault("link.framing", "opcode")
	v.SetDefault("link.poll_interval", 100*time.Millisecond)
	v.SetDefault("link.scan_timeout", 15*time.Second)
	v.SetDefault("link.capture", "")
	v.SetDefault("link.paced", true)

	v.SetDefault("workout.mode", "old_school")
	v.SetDefault("workout.weight_kg", 10.0)
	v.SetDefault("workout.echo_level", "hard")
	v.SetDefault("workout.eccentric_load", 100)
	v.SetDefault("workout.warmup_reps", 3)
	v.SetDefault("workout.working_reps", 10)
	v.SetDefault("workout.just_lift", false)
	v.SetDefault("workout.stop_at_top", false)
	v.SetDefault("workout.amrap", false)
	v.SetDefault("workout.countdown_seconds", 5)
	v.SetDefault("workout.skip_countdown", false)

	v.SetDefault("autostop.grace", 3*time.Second)
	v.SetDefault("autostop.rest_velocity", 2.5)
	v.SetDefault("autostop.min_range", 50)
	v.SetDefault("autostop.release_distance", 10)

	v.SetDefault("handles.auto_start", true)
	v.SetDefault("handles.threshold", 500)
	v.SetDefault("handles.countdown_seconds", 5)

	v.SetDefault("filter.spike_threshold", 50000)

	v.SetDefault("sim.listen", "")
	v.SetDefault("sim.interval", 100*time.Millisecond)
	v.SetDefault("sim.rep_duration", 2*time.Second)
	v.SetDefault("sim.working_reps", 10)
	v.SetDefault("sim.auto_lift", false)
	v.SetDefault("sim.spike_every", 0)

	v.SetDefault("log.file", defaultLogFile())
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.stderr", false)
}

func defaultLogFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vitruvian.log"
	}
	return filepath.Join(home, configDirName, "vitruvian.log")
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"link":          "link.kind",
	"address":       "link.address",
	"url":           "link.url",
	"no-ssl-verify": "link.skip_tls_verify",
	"framing":       "link.framing",
	"capture":       "link.capture",
	"paced":         "link.paced",
	"mode":          "workout.mode",
	"weight":        "workout.weight_kg",
	"echo-level":    "workout.echo_level",
	"eccentric":     "workout.eccentric_load",
	"warmup":        "workout.warmup_reps",
	"reps":          "workout.working_reps",
	"just-lift":     "workout.just_lift",
	"amrap":         "workout.amrap",
	"stop-at-top":   "workout.stop_at_top",
	"no-countdown":  "workout.skip_countdown",
	"listen":        "sim.listen",
	"auto-lift":     "sim.auto_lift",
	"spike-every":   "sim.spike_every",
	"log-file":      "log.file",
	"verbose":       "log.stderr",
}

// BindFlags binds whichever of the known flags exist in flags
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads the layered configuration. configFile overrides the default location;
// a missing default file is not an error.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(configBaseName)
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, configDirName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UsedFile returns the config file that was read, or "" when none was
func UsedFile(v *viper.Viper) string {
	return v.ConfigFileUsed()
}
