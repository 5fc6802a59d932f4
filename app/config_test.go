package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *pflag.FlagSet {
	return pflag.NewFlagSet("drill", pflag.ContinueOnError)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 3, cfg.Queue.Capacity)
	assert.Equal(t, 100*time.Millisecond, cfg.Timeouts.Gate)
	assert.Equal(t, time.Second, cfg.Timeouts.Queue)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Handoff)
	assert.Equal(t, 200*time.Millisecond, cfg.Display.Cadence)
	assert.Equal(t, uint8(1), cfg.Tasks.ProducerPriority)
	assert.Equal(t, uint8(2), cfg.Tasks.ConsumerPriority)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60, cfg.Run.Hz)
	assert.True(t, cfg.Stats.Enabled)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drill.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue:
  capacity: 5
random:
  seed: 9
timeouts:
  gate: 1s
display:
  cadence: 50ms
`), 0o600))
	t.Setenv("DRILL_RANDOM_SEED", "11")
	t.Setenv("DRILL_TIMEOUTS_GATE", "50ms")

	cfg, err := LoadConfig(newFlagSet(), []string{"--config", path, "--seed", "13", "--headless"})
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.Capacity)
	assert.Equal(t, 50*time.Millisecond, cfg.Display.Cadence)
	assert.Equal(t, 50*time.Millisecond, cfg.Timeouts.Gate)
	assert.Equal(t, uint64(13), cfg.Random.Seed)
	assert.True(t, cfg.Run.Headless)
}

func TestLoadConfigRejectsDuplicatePriorities(t *testing.T) {
	t.Setenv("DRILL_TASKS_CONSUMER_PRIORITY", "1")
	_, err := LoadConfig(newFlagSet(), nil)
	require.ErrorContains(t, err, "ProducerPriority")
}

func TestLoadConfigRejectsBadLevel(t *testing.T) {
	_, err := LoadConfig(newFlagSet(), []string{"--log-level", "loud"})
	require.ErrorContains(t, err, "invalid config")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(newFlagSet(), []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	require.ErrorContains(t, err, "read config")
}

func TestValidateZeroQueue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Queue.Capacity = 0
	require.ErrorContains(t, cfg.Validate(), "Capacity")
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Queue.Capacity)
	assert.Equal(t, 100*time.Millisecond, cfg.Timeouts.Gate)
	assert.True(t, cfg.Stats.Enabled)
}

func TestValidateProducerMustOutrankConsumer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tasks.ProducerPriority = 3
	cfg.Tasks.ConsumerPriority = 2
	err := cfg.Validate()
	require.ErrorContains(t, err, "ProducerPriority")
	require.ErrorContains(t, err, "ltfield=ConsumerPriority")
}

func TestValidateStatPriorityOnlyWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tasks.StatPriority = cfg.Tasks.ProducerPriority

	cfg.Stats.Enabled = false
	require.NoError(t, cfg.Validate())

	cfg.Stats.Enabled = true
	err := cfg.Validate()
	require.ErrorContains(t, err, "StatPriority")
	require.ErrorContains(t, err, "nefield=ProducerPriority")
}
