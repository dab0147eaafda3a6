package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/vitruvian-monitor/internal/protocol"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoad_Defaults(t *testing.T) {
	isolateHome(t)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, LinkBLE, cfg.Link.Kind)
	assert.Equal(t, 100*time.Millisecond, cfg.Link.PollInterval)
	assert.Equal(t, protocol.FramingOpcode, cfg.Link.FramingValue())
	assert.Equal(t, 3, cfg.Workout.WarmupReps)
	assert.Equal(t, 3*time.Second, cfg.AutoStop.Grace)
	assert.Equal(t, 2.5, cfg.AutoStop.RestVelocity)
	assert.Equal(t, 500, cfg.Handles.Threshold)
	assert.Equal(t, 50000, cfg.Filter.SpikeThreshold)
	assert.True(t, cfg.Handles.AutoStart)
}

func TestLoad_HomeFileAndEnv(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".vitruvian")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	yaml := "link:\n  kind: sim\nworkout:\n  mode: pump\n  weight_kg: 22.5\nautostop:\n  grace: 5s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("VITRUVIAN_WORKOUT_WORKING_REPS", "12")

	v := viper.New()
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, LinkSim, cfg.Link.Kind)
	assert.Equal(t, 22.5, cfg.Workout.WeightKg)
	assert.Equal(t, 5*time.Second, cfg.AutoStop.Grace)
	assert.Equal(t, 12, cfg.Workout.WorkingReps)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), UsedFile(v))

	cmd, err := cfg.Workout.Command()
	require.NoError(t, err)
	assert.Equal(t, protocol.ProgramCommand{Mode: protocol.ModePump, WeightPerCableKg: 22.5}, cmd)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	isolateHome(t)
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_FlagsOverride(t *testing.T) {
	isolateHome(t)
	t.Setenv("VITRUVIAN_LINK_KIND", "ble")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("link", LinkBLE, "")
	flags.Float64("weight", 0, "")
	flags.Bool("just-lift", false, "")
	require.NoError(t, flags.Parse([]string{"--link", "sim", "--weight", "7.5", "--just-lift"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, LinkSim, cfg.Link.Kind)
	assert.Equal(t, 7.5, cfg.Workout.WeightKg)
	assert.True(t, cfg.Workout.JustLift)
	assert.True(t, cfg.Workout.RepConfig().JustLift)
}

func TestValidate(t *testing.T) {
	isolateHome(t)
	base, err := Load(viper.New(), "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "unknown link", modify: func(c *Config) { c.Link.Kind = "serial" }, errMsg: "link.kind"},
		{name: "ws without url", modify: func(c *Config) { c.Link.Kind = LinkWebSocket }, errMsg: "link.url"},
		{name: "replay without capture", modify: func(c *Config) { c.Link.Kind = LinkReplay }, errMsg: "link.capture"},
		{name: "bad framing", modify: func(c *Config) { c.Link.Framing = "v3" }, errMsg: "link.framing"},
		{name: "bad mode", modify: func(c *Config) { c.Workout.Mode = "crossfit" }, errMsg: "workout.mode"},
		{name: "heavy", modify: func(c *Config) { c.Workout.WeightKg = 700 }, errMsg: "workout.weight_kg"},
		{name: "negative reps", modify: func(c *Config) { c.Workout.WorkingReps = -1 }, errMsg: "rep targets"},
		{name: "echo level", modify: func(c *Config) { c.Workout.Mode = ModeEcho; c.Workout.EchoLevel = "brutal" }, errMsg: "echo_level"},
		{name: "echo load", modify: func(c *Config) { c.Workout.Mode = ModeEcho; c.Workout.EccentricLoad = 60 }, errMsg: "eccentric_load"},
		{name: "echo load not encodable", modify: func(c *Config) { c.Workout.Mode = ModeEcho; c.Workout.EccentricLoad = 75 }, errMsg: "eccentric_load"},
		{name: "zero grace", modify: func(c *Config) { c.AutoStop.Grace = 0 }, errMsg: "autostop.grace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWorkoutConfig_EchoCommand(t *testing.T) {
	w := WorkoutConfig{Mode: ModeEcho, EchoLevel: "epic", EccentricLoad: 100}
	cmd, err := w.Command()
	require.NoError(t, err)
	assert.Equal(t, protocol.EchoCommand{Level: protocol.EchoEpic, EccentricLoadPercent: 100}, cmd)
}

func TestSimConfig_LinkConfig(t *testing.T) {
	sim := SimConfig{Interval: 50 * time.Millisecond, RepDuration: time.Second, WorkingReps: 4, SpikeEvery: 7}
	got := sim.LinkConfig(protocol.FramingLegacy)
	assert.Equal(t, protocol.FramingLegacy, got.Framing)
	assert.Equal(t, 4, got.WorkingReps)
	assert.Equal(t, 7, got.SpikeEvery)
	assert.Equal(t, 50*time.Millisecond, got.Interval)
}
