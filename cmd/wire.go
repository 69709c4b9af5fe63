package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbench/internal/assessment"
	"github.com/abhisek/tutorbench/internal/config"
	"github.com/abhisek/tutorbench/internal/judge"
	"github.com/abhisek/tutorbench/internal/llm"
	"github.com/abhisek/tutorbench/internal/logging"
	"github.com/abhisek/tutorbench/internal/platform"
	"github.com/abhisek/tutorbench/internal/runner"
	"github.com/abhisek/tutorbench/internal/store"
)

// app holds everything a command needs. Fields a command did not ask for
// stay nil.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	platform *platform.Client
	provider llm.Provider
}

type wireOpts struct {
	// assess wires the LLM provider and requires its configuration.
	assess bool
	// offline skips the platform client; only the store is opened.
	offline bool
}

// loadConfig reads configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile, EnvFile: envFile})
	if err != nil {
		return config.Config{}, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if f, _ := cmd.Flags().GetString("log-format"); f != "" {
		cfg.Log.Format = f
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, logger, nil
}

// wireApp builds dependencies once, in dependency order.
func wireApp(cmd *cobra.Command, cfg config.Config, logger *slog.Logger, opts wireOpts) (*app, error) {
	switch {
	case opts.assess:
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	case !opts.offline:
		if err := cfg.Platform.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	}

	a := &app{cfg: cfg, logger: logger}

	dbPath, err := resolveDBPath(cmd, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	a.store, err = store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Debug("store opened", "path", dbPath)

	if opts.offline {
		return a, nil
	}

	a.platform, err = platform.New(platform.Options{
		BaseURL:        cfg.Platform.BaseURL,
		APIKey:         cfg.Platform.APIKey,
		Timeout:        cfg.Platform.Timeout,
		TopicCacheSize: cfg.Platform.TopicCacheSize,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if opts.assess {
		a.provider, err = llm.NewProvider(cmd.Context(), cfg.LLM, a.store.EventRepo(), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create LLM provider: %w", err)
		}
		logger.Debug("llm provider ready", "provider", cfg.LLM.Provider, "model", a.provider.ModelID())
	}
	return a, nil
}

// Close releases the store.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// controller builds the assessment loop over the LLM judgments.
func (a *app) controller() *assessment.Controller {
	jcfg := judge.DefaultConfig()
	judges := assessment.Judges{
		Tutor:    judge.NewTutor(a.provider, jcfg),
		Analyzer: judge.NewAnalyzer(a.provider, jcfg),
		Inferrer: judge.NewInferrer(a.provider, jcfg),
		Scorer:   judge.NewScorer(a.provider, jcfg),
	}
	return assessment.NewController(a.platform, judges, assessmentConfig(a.cfg.Assessment), a.logger)
}

// runner builds a session runner that persists outcomes. metrics may be nil.
func (a *app) runner(concurrency int, metrics *runner.Metrics) *runner.Runner {
	return runner.New(a.platform, a.controller(), runner.Options{
		Concurrency: concurrency,
		Sessions:    a.store.SessionRepo(),
		Metrics:     metrics,
		Logger:      a.logger,
	})
}

func assessmentConfig(c config.AssessmentConfig) assessment.Config {
	return assessment.Config{
		MaxTurns: c.MaxTurns,
		Stopping: assessment.StoppingConfig{
			MinTurns:                c.MinTurns,
			PlateauThreshold:        c.PlateauThreshold,
			HighConfidenceThreshold: c.HighConfidenceThreshold,
			HighConfidenceStability: c.HighConfidenceStability,
		},
		Blend: assessment.BlendConfig{
			Base: c.BlendBase,
			Span: c.BlendSpan,
		},
	}
}

// openStore wires only the store, for commands that read local history.
func openStore(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return wireApp(cmd, cfg, logger, wireOpts{offline: true})
}
