// Package archerconfig provides the engine's configuration record,
// constructed once at startup and passed explicitly into every
// component — no global/singleton state, per spec.md §9's design note on
// replacing global module state with an explicit configuration record.
package archerconfig

import (
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/archerhq/archer/archerlog"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	GeneratorTemperature    float64       `env:"ARCHER_GENERATOR_TEMPERATURE" envDefault:"0.7"`
	EvaluatorTemperature    float64       `env:"ARCHER_EVALUATOR_TEMPERATURE" envDefault:"0.2"`
	OptimizerTemperature    float64       `env:"ARCHER_OPTIMIZER_TEMPERATURE" envDefault:"0.9"`
	NumSimulationsPerPrompt int           `env:"ARCHER_NUM_SIMULATIONS_PER_PROMPT" envDefault:"3"`
	MaxPromptsPerCycle      int           `env:"ARCHER_MAX_PROMPTS_PER_CYCLE" envDefault:"4"`
	NumVariantsPerSurvivor  int           `env:"ARCHER_NUM_VARIANTS_PER_SURVIVOR" envDefault:"3"`
	SurvivorFraction        float64       `env:"ARCHER_SURVIVOR_FRACTION" envDefault:"0.5"`
	HumanGate               bool          `env:"ARCHER_HUMAN_GATE" envDefault:"false"`
	CycleWallBudget         time.Duration `env:"ARCHER_CYCLE_WALL_BUDGET" envDefault:"0"`
	LLMMaxAttempts          int           `env:"ARCHER_LLM_MAX_ATTEMPTS" envDefault:"3"`
	LLMPerAttemptTimeout    time.Duration `env:"ARCHER_LLM_PER_ATTEMPT_TIMEOUT" envDefault:"60s"`
	LLMOverallBudget        time.Duration `env:"ARCHER_LLM_OVERALL_BUDGET" envDefault:"180s"`
	ModelConcurrency        int           `env:"ARCHER_MODEL_CONCURRENCY" envDefault:"8"`
	EarlyStopEpsilon        float64       `env:"ARCHER_EARLY_STOP_EPSILON" envDefault:"0.0"`
	LogLevel                archerlog.Level
}

// Default returns the configuration with every value at its
// specification-mandated default.
func Default() Config {
	return Config{
		GeneratorTemperature:    0.7,
		EvaluatorTemperature:    0.2,
		OptimizerTemperature:    0.9,
		NumSimulationsPerPrompt: 3,
		MaxPromptsPerCycle:      4,
		NumVariantsPerSurvivor:  3,
		SurvivorFraction:        0.5,
		HumanGate:               false,
		CycleWallBudget:         0,
		LLMMaxAttempts:          3,
		LLMPerAttemptTimeout:    60 * time.Second,
		LLMOverallBudget:        180 * time.Second,
		ModelConcurrency:        8,
		EarlyStopEpsilon:        0.0,
		LogLevel:                archerlog.LevelWarn,
	}
}

// Load builds a Config from environment variables, falling back to
// specification defaults for anything unset.
func Load() (Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Option mutates a Config programmatically, mirroring the teacher's
// ConfigOption pattern (config.SetXxx).
type Option func(*Config)

// Apply runs every option against cfg in order.
func Apply(cfg *Config, opts ...Option) {
	for _, opt := range opts {
		opt(cfg)
	}
}

func WithGeneratorTemperature(t float64) Option {
	return func(c *Config) { c.GeneratorTemperature = t }
}

func WithEvaluatorTemperature(t float64) Option {
	return func(c *Config) { c.EvaluatorTemperature = t }
}

func WithOptimizerTemperature(t float64) Option {
	return func(c *Config) { c.OptimizerTemperature = t }
}

func WithNumSimulationsPerPrompt(n int) Option {
	return func(c *Config) { c.NumSimulationsPerPrompt = n }
}

func WithMaxPromptsPerCycle(n int) Option {
	return func(c *Config) { c.MaxPromptsPerCycle = n }
}

func WithNumVariantsPerSurvivor(n int) Option {
	return func(c *Config) { c.NumVariantsPerSurvivor = n }
}

func WithSurvivorFraction(f float64) Option {
	return func(c *Config) { c.SurvivorFraction = f }
}

func WithHumanGate(enabled bool) Option {
	return func(c *Config) { c.HumanGate = enabled }
}

func WithCycleWallBudget(d time.Duration) Option {
	return func(c *Config) { c.CycleWallBudget = d }
}

func WithLLMMaxAttempts(n int) Option {
	return func(c *Config) { c.LLMMaxAttempts = n }
}

func WithLLMPerAttemptTimeout(d time.Duration) Option {
	return func(c *Config) { c.LLMPerAttemptTimeout = d }
}

func WithModelConcurrency(n int) Option {
	return func(c *Config) { c.ModelConcurrency = n }
}

func WithLogLevel(level archerlog.Level) Option {
	return func(c *Config) { c.LogLevel = level }
}
