package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"drill/drillos/services/logger"
)

// Config holds all application configuration.
type Config struct {
	Log      logger.Config  `mapstructure:"log"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Display  DisplayConfig  `mapstructure:"display"`
	Random   RandomConfig   `mapstructure:"random"`
	Tasks    TasksConfig    `mapstructure:"tasks"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Run      RunConfig      `mapstructure:"run"`
}

type QueueConfig struct {
	Capacity int `mapstructure:"capacity" validate:"gte=1,lte=64"`
}

// TimeoutsConfig bounds each blocking wait. Zero waits forever.
type TimeoutsConfig struct {
	Gate    time.Duration `mapstructure:"gate" validate:"gte=0"`
	Queue   time.Duration `mapstructure:"queue" validate:"gte=0"`
	Handoff time.Duration `mapstructure:"handoff" validate:"gte=0"`
}

type DisplayConfig struct {
	Cadence time.Duration `mapstructure:"cadence" validate:"gte=1ms"`
}

// RandomConfig seeds the operand generator. Zero seeds from the clock.
type RandomConfig struct {
	Seed uint64 `mapstructure:"seed"`
}

// TasksConfig assigns each task a distinct priority; lower runs first.
// The producer must outrank the consumer. The stat priority only has to be
// distinct when the stat task is enabled.
type TasksConfig struct {
	StatPriority     uint8 `mapstructure:"stat_priority"`
	ProducerPriority uint8 `mapstructure:"producer_priority" validate:"ltfield=ConsumerPriority,nefield=LoggerPriority"`
	ConsumerPriority uint8 `mapstructure:"consumer_priority" validate:"nefield=LoggerPriority"`
	LoggerPriority   uint8 `mapstructure:"logger_priority"`
}

type StatsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=1ms"`
}

type RunConfig struct {
	Headless bool   `mapstructure:"headless"`
	Hz       int    `mapstructure:"hz" validate:"gt=0,lte=1000"`
	Ticks    uint64 `mapstructure:"ticks"`

	// MaxProblems stops the system after that many problems were rendered.
	// Zero runs until cancelled.
	MaxProblems uint32 `mapstructure:"max_problems"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateStatPriority, Config{})
	return v
}

func validateStatPriority(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if !c.Stats.Enabled {
		return
	}
	for _, other := range []struct {
		name string
		prio uint8
	}{
		{"ProducerPriority", c.Tasks.ProducerPriority},
		{"ConsumerPriority", c.Tasks.ConsumerPriority},
		{"LoggerPriority", c.Tasks.LoggerPriority},
	} {
		if c.Tasks.StatPriority == other.prio {
			sl.ReportError(c.Tasks.StatPriority, "Tasks.StatPriority", "StatPriority", "nefield", other.name)
		}
	}
}

// Validate checks field ranges and task priorities.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("queue.capacity", 3)
	v.SetDefault("timeouts.gate", 100*time.Millisecond)
	v.SetDefault("timeouts.queue", time.Second)
	v.SetDefault("timeouts.handoff", 2*time.Second)
	v.SetDefault("display.cadence", 200*time.Millisecond)
	v.SetDefault("random.seed", uint64(0))
	v.SetDefault("tasks.stat_priority", 0)
	v.SetDefault("tasks.producer_priority", 1)
	v.SetDefault("tasks.consumer_priority", 2)
	v.SetDefault("tasks.logger_priority", 10)
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.interval", time.Second)
	v.SetDefault("run.headless", false)
	v.SetDefault("run.hz", 60)
	v.SetDefault("run.ticks", uint64(0))
	v.SetDefault("run.max_problems", uint32(0))
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("app: default config: %v", err))
	}
	return cfg
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"headless":     "run.headless",
	"hz":           "run.hz",
	"ticks":        "run.ticks",
	"max-problems": "run.max_problems",
	"seed":         "random.seed",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// LoadConfig resolves configuration from defaults, an optional config file,
// DRILL_* environment variables and command-line flags, in increasing order
// of precedence.
func LoadConfig(fs *pflag.FlagSet, args []string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	configPath := fs.String("config", "", "Path to a config file (yaml, toml, json).")
	fs.Bool("headless", false, "Run without a window.")
	fs.Int("hz", 60, "Frame rate of the host runner.")
	fs.Uint64("ticks", 0, "Stop after N frames in headless mode (0 = run forever).")
	fs.Uint32("max-problems", 0, "Stop after N problems were shown (0 = run forever).")
	fs.Uint64("seed", 0, "Random seed (0 = time-derived).")
	fs.String("log-level", "info", "Log level: debug, info, warn, error.")
	fs.String("log-format", "text", "Log format: text, json.")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	v.SetEnvPrefix("DRILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", *configPath, err)
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
