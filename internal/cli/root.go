// Package cli implements the failrag-index command for building and maintaining corpus snapshots.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/bootstrap"
	"github.com/kailas-cloud/failrag/internal/config"
	"github.com/kailas-cloud/failrag/internal/domain"
	logpkg "github.com/kailas-cloud/failrag/internal/logger"
	"github.com/kailas-cloud/failrag/internal/version"
)

// app holds what every subcommand shares. Tests replace the hooks.
type app struct {
	stdout     io.Writer
	configPath string
	env        string

	loadConfig     func(a *app) (config.Config, error)
	buildProviders func(cfg *config.Config, logger *zap.Logger) ([]domain.EmbeddingProvider, error)
	newLogger      func(a *app, cfg *config.Config) (*zap.Logger, error)
}

func newApp(stdout io.Writer) *app {
	return &app{
		stdout:         stdout,
		loadConfig:     loadConfig,
		buildProviders: documentProviders,
		newLogger:      newLogger,
	}
}

// NewRootCommand builds the failrag-index command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp(os.Stdout))
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "failrag-index",
		Short: "Build and maintain failrag corpus snapshots",
		Long: `Build and maintain the SQLite snapshot the failrag server loads.

Examples:
  failrag-index build --source docs/failures --out data/knowledge.db
  failrag-index backfill --db data/knowledge.db
  failrag-index stats --db data/knowledge.db
  failrag-index show --db data/knowledge.db --id 3
  failrag-index rm --db data/knowledge.db --id 3`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: config/<ENV>.yaml)")
	root.PersistentFlags().StringVar(&a.env, "env", config.GetEnv(), "environment name (local, dev, prod)")

	root.AddCommand(newBuildCmd(a))
	root.AddCommand(newBackfillCmd(a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newShowCmd(a))
	root.AddCommand(newRmCmd(a))
	return root
}

func loadConfig(a *app) (config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}
	return config.Load(a.env)
}

func newLogger(a *app, cfg *config.Config) (*zap.Logger, error) {
	return logpkg.NewLogger(a.env, cfg.Logging.Level, logpkg.FileSink{})
}

func documentProviders(cfg *config.Config, logger *zap.Logger) ([]domain.EmbeddingProvider, error) {
	built, err := bootstrap.BuildProviders(bootstrap.ProvidersFromConfig(cfg), bootstrap.PurposeDocument, nil, logger)
	if err != nil {
		return nil, err
	}
	out := make([]domain.EmbeddingProvider, 0, len(built))
	for _, p := range built {
		out = append(out, p)
	}
	return out, nil
}

// specsFor returns the storage specs of every configured provider, with or without credentials.
func specsFor(cfg *config.Config) []domain.ProviderSpec {
	var specs []domain.ProviderSpec
	for _, id := range domain.ProviderOrder {
		dim := domain.DefaultDimension(id)
		if p, ok := cfg.Providers[string(id)]; ok && p.Dimensions > 0 {
			dim = p.Dimensions
		}
		specs = append(specs, domain.ProviderSpec{ID: id, Dimension: dim})
	}
	return specs
}

// setup loads config, logger and providers for a subcommand.
func (a *app) setup() (config.Config, *zap.Logger, []domain.EmbeddingProvider, error) {
	cfg, err := a.loadConfig(a)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := a.newLogger(a, &cfg)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("create logger: %w", err)
	}
	providers, err := a.buildProviders(&cfg, logger)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("build providers: %w", err)
	}
	return cfg, logger, providers, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
