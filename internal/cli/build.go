package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/domain"
	documentrepo "github.com/kailas-cloud/failrag/internal/repository/document"
	"github.com/kailas-cloud/failrag/internal/usecase/corpus"
)

func newBuildCmd(a *app) *cobra.Command {
	var source, out string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a snapshot from YAML failure documents",
		Long: `Load every *.yaml / *.yml file under --source, embed each document with every
configured provider and write the result to --out. The snapshot is written next
to --out and renamed into place, so a running server watching the file reloads it once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if source == "" || out == "" {
				return errors.New("--source and --out are required")
			}
			cfg, logger, providers, err := a.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			entries, err := corpus.LoadDir(source)
			if err != nil {
				return err
			}
			logger.Info("Loaded corpus sources", zap.String("source", source), zap.Int("documents", len(entries)))

			tmp := out + ".tmp"
			if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove stale %s: %w", tmp, err)
			}
			if dir := filepath.Dir(out); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}

			store, err := documentrepo.New(specsFor(&cfg), logger)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			if err := store.InitializeWritable(ctx, tmp); err != nil {
				return err
			}

			report, buildErr := corpus.NewIndexer(store, providers, logger).
				WithConcurrency(cfg.Indexer.Concurrency).
				Build(ctx, entries)
			if err := store.Close(); err != nil && buildErr == nil {
				buildErr = fmt.Errorf("close snapshot: %w", err)
			}
			if buildErr != nil {
				_ = os.Remove(tmp)
				return buildErr
			}
			if err := os.Rename(tmp, out); err != nil {
				return fmt.Errorf("install snapshot: %w", err)
			}

			printReport(a, report, providers)
			fmt.Fprintf(a.stdout, "Snapshot written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "directory of YAML failure documents")
	cmd.Flags().StringVar(&out, "out", "", "snapshot file to write")
	return cmd
}

func printReport(a *app, r corpus.Report, providers []domain.EmbeddingProvider) {
	if r.Inserted > 0 {
		fmt.Fprintf(a.stdout, "Inserted %d documents\n", r.Inserted)
	}
	for _, p := range providers {
		fmt.Fprintf(a.stdout, "%-8s embedded %d, failed %d\n", p.ID(), r.Embedded[p.ID()], r.Failed[p.ID()])
	}
}
