package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	documentrepo "github.com/kailas-cloud/failrag/internal/repository/document"
	"github.com/kailas-cloud/failrag/internal/usecase/corpus"
)

func newBackfillCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed documents that are missing an embedding",
		Long: `Embed only the documents of --db that lack an embedding for a configured provider.
Use after adding a provider or after a build with failures.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				return errors.New("--db is required")
			}
			cfg, logger, providers, err := a.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store, err := documentrepo.New(specsFor(&cfg), logger)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			if err := store.InitializeWritable(ctx, dbPath); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, err := corpus.NewIndexer(store, providers, logger).
				WithConcurrency(cfg.Indexer.Concurrency).
				Backfill(ctx)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			printReport(a, report, providers)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot file to update")
	return cmd
}
