package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	documentrepo "github.com/kailas-cloud/failrag/internal/repository/document"
)

func newStatsCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show document and embedding counts of a snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				return errors.New("--db is required")
			}
			cfg, err := a.loadConfig(a)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := a.newLogger(a, &cfg)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			specs := specsFor(&cfg)
			store, err := documentrepo.New(specs, logger)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			if err := store.InitializeReadOnly(ctx, dbPath); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			total, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s: %d documents\n", dbPath, total)
			for _, s := range specs {
				n, err := store.CountWithEmbeddings(ctx, s.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%-8s %d/%d embedded (dim %d)\n", s.ID, n, total, s.Dimension)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot file to inspect")
	return cmd
}
