// Package config loads tutorbench configuration from defaults, an optional
// TOML file, a .env file and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/abhisek/tutorbench/internal/llm"
	"github.com/abhisek/tutorbench/internal/logging"
)

// EnvPrefix is prepended to every configuration key when read from the
// environment: llm.openai.api_key → TUTORBENCH_LLM_OPENAI_API_KEY.
const EnvPrefix = "TUTORBENCH"

// DefaultPlatformURL is the student-simulation platform endpoint.
const DefaultPlatformURL = "https://knowunity-agent-olympics-2026-api.vercel.app"

// Config is the complete runtime configuration, built once in cmd and
// passed down explicitly.
type Config struct {
	Platform   PlatformConfig   `mapstructure:"platform"`
	LLM        llm.Config       `mapstructure:"llm"`
	Assessment AssessmentConfig `mapstructure:"assessment"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Store      StoreConfig      `mapstructure:"store"`
	Log        logging.Config   `mapstructure:"log"`
}

// PlatformConfig configures the student-simulation platform client.
type PlatformConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	TopicCacheSize int           `mapstructure:"topic_cache_size"`
}

// AssessmentConfig holds the turn budget, the early-stopping thresholds and
// the final blend weights.
type AssessmentConfig struct {
	MaxTurns                int     `mapstructure:"max_turns"`
	MinTurns                int     `mapstructure:"min_turns"`
	PlateauThreshold        int     `mapstructure:"plateau_threshold"`
	HighConfidenceThreshold float64 `mapstructure:"high_confidence_threshold"`
	HighConfidenceStability int     `mapstructure:"high_confidence_stability"`
	BlendBase               float64 `mapstructure:"blend_base"`
	BlendSpan               float64 `mapstructure:"blend_span"`
}

// RunnerConfig configures batch evaluation.
type RunnerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	Dataset     string `mapstructure:"dataset"`
	OutputDir   string `mapstructure:"output_dir"`
}

// StoreConfig locates the SQLite database. An empty Path means the default
// XDG location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Datasets accepted by the platform.
var Datasets = []string{"mini_dev", "dev", "test"}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Platform: PlatformConfig{
			BaseURL:        DefaultPlatformURL,
			Timeout:        30 * time.Second,
			TopicCacheSize: 256,
		},
		LLM: llm.DefaultConfig(),
		Assessment: AssessmentConfig{
			MaxTurns:                10,
			MinTurns:                2,
			PlateauThreshold:        3,
			HighConfidenceThreshold: 0.9,
			HighConfidenceStability: 2,
			BlendBase:               0.5,
			BlendSpan:               0.3,
		},
		Runner: RunnerConfig{
			Concurrency: 3,
			Dataset:     "mini_dev",
			OutputDir:   ".",
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadOptions points Load at explicit files. Both are optional.
type LoadOptions struct {
	// ConfigFile is a TOML file. When empty, ./tutorbench.toml and
	// $XDG_CONFIG_HOME/tutorbench/tutorbench.toml are tried.
	ConfigFile string

	// EnvFile is a dotenv file; ".env" when empty. A missing file is not
	// an error. Variables already set in the environment win.
	EnvFile string
}

// fallbackEnv lists conventional variable names honoured after the
// prefixed ones.
var fallbackEnv = map[string][]string{
	"platform.api_key":       {"KNOWUNITY_API_KEY"},
	"platform.base_url":      {"KNOWUNITY_API_URL"},
	"llm.provider":           {"LLM_PROVIDER"},
	"llm.openai.api_key":     {"OPENAI_API_KEY"},
	"llm.openai.base_url":    {"OPENAI_BASE_URL"},
	"llm.anthropic.api_key":  {"ANTHROPIC_API_KEY"},
	"llm.gemini.api_key":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"llm.openrouter.api_key": {"OPENROUTER_API_KEY"},
}

// Load resolves the configuration.
func Load(opts LoadOptions) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range fallbackEnv {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("tutorbench")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "tutorbench"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"platform.base_url":         d.Platform.BaseURL,
		"platform.api_key":          d.Platform.APIKey,
		"platform.timeout":          d.Platform.Timeout,
		"platform.topic_cache_size": d.Platform.TopicCacheSize,

		"llm.provider":            d.LLM.Provider,
		"llm.timeout":             d.LLM.Timeout,
		"llm.anthropic.api_key":   d.LLM.Anthropic.APIKey,
		"llm.anthropic.model":     d.LLM.Anthropic.Model,
		"llm.openai.api_key":      d.LLM.OpenAI.APIKey,
		"llm.openai.model":        d.LLM.OpenAI.Model,
		"llm.openai.base_url":     d.LLM.OpenAI.BaseURL,
		"llm.gemini.api_key":      d.LLM.Gemini.APIKey,
		"llm.gemini.model":        d.LLM.Gemini.Model,
		"llm.openrouter.api_key":  d.LLM.OpenRouter.APIKey,
		"llm.openrouter.model":    d.LLM.OpenRouter.Model,
		"llm.openrouter.base_url": d.LLM.OpenRouter.BaseURL,
		"llm.retry.max_attempts":  d.LLM.Retry.MaxAttempts,
		"llm.retry.initial_wait":  d.LLM.Retry.InitialWait,
		"llm.retry.max_wait":      d.LLM.Retry.MaxWait,
		"llm.retry.multiplier":    d.LLM.Retry.Multiplier,

		"assessment.max_turns":                 d.Assessment.MaxTurns,
		"assessment.min_turns":                 d.Assessment.MinTurns,
		"assessment.plateau_threshold":         d.Assessment.PlateauThreshold,
		"assessment.high_confidence_threshold": d.Assessment.HighConfidenceThreshold,
		"assessment.high_confidence_stability": d.Assessment.HighConfidenceStability,
		"assessment.blend_base":                d.Assessment.BlendBase,
		"assessment.blend_span":                d.Assessment.BlendSpan,

		"runner.concurrency": d.Runner.Concurrency,
		"runner.dataset":     d.Runner.Dataset,
		"runner.output_dir":  d.Runner.OutputDir,

		"store.path": d.Store.Path,

		"log.level":  d.Log.Level,
		"log.format": d.Log.Format,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks everything needed to run assessments.
func (c Config) Validate() error {
	var errs []error
	if err := c.Platform.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if err := c.Assessment.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Runner.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("runner concurrency must be at least 1, got %d", c.Runner.Concurrency))
	}
	if err := ValidateDataset(c.Runner.Dataset); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks what every platform call needs.
func (p PlatformConfig) Validate() error {
	var errs []error
	if p.BaseURL == "" {
		errs = append(errs, errors.New("platform base URL is required"))
	}
	if p.APIKey == "" {
		errs = append(errs, errors.New("platform API key is required (set KNOWUNITY_API_KEY)"))
	}
	return errors.Join(errs...)
}

// Validate checks turn limits, policy thresholds and blend weights.
func (a AssessmentConfig) Validate() error {
	switch {
	case a.MaxTurns < 1:
		return fmt.Errorf("max turns must be at least 1, got %d", a.MaxTurns)
	case a.MinTurns < 1:
		return fmt.Errorf("min turns must be at least 1, got %d", a.MinTurns)
	case a.PlateauThreshold < 1:
		return fmt.Errorf("plateau threshold must be at least 1, got %d", a.PlateauThreshold)
	case a.HighConfidenceThreshold < 0 || a.HighConfidenceThreshold > 1:
		return fmt.Errorf("high confidence threshold must be in [0,1], got %v", a.HighConfidenceThreshold)
	case a.HighConfidenceStability < 0:
		return fmt.Errorf("high confidence stability must be non-negative, got %d", a.HighConfidenceStability)
	case a.BlendBase < 0 || a.BlendSpan < 0 || a.BlendBase+a.BlendSpan > 1:
		return fmt.Errorf("blend weights must satisfy 0 <= base, 0 <= span, base+span <= 1; got %v, %v", a.BlendBase, a.BlendSpan)
	}
	return nil
}

// ValidateDataset rejects names the platform does not know.
func ValidateDataset(name string) error {
	for _, d := range Datasets {
		if d == name {
			return nil
		}
	}
	return fmt.Errorf("unknown dataset %q (want one of %s)", name, strings.Join(Datasets, ", "))
}
