package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/failrag/internal/domain"
	documentrepo "github.com/kailas-cloud/failrag/internal/repository/document"
)

// openSnapshot opens dbPath for a document subcommand. The returned close func releases store and logger.
func openSnapshot(a *app, cmd *cobra.Command, dbPath string, writable bool) (*documentrepo.Store, func(), error) {
	if dbPath == "" {
		return nil, nil, errors.New("--db is required")
	}
	cfg, err := a.loadConfig(a)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := a.newLogger(a, &cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	store, err := documentrepo.New(specsFor(&cfg), logger)
	if err != nil {
		return nil, nil, err
	}
	ctx := commandContext(cmd)
	if writable {
		err = store.InitializeWritable(ctx, dbPath)
	} else {
		err = store.InitializeReadOnly(ctx, dbPath)
	}
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return store, func() {
		_ = store.Close()
		_ = logger.Sync()
	}, nil
}

func newShowCmd(a *app) *cobra.Command {
	var (
		dbPath string
		id     int64
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one document of a snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id <= 0 {
				return errors.New("--id is required")
			}
			store, done, err := openSnapshot(a, cmd, dbPath, false)
			if err != nil {
				return err
			}
			defer done()

			doc, err := store.Get(commandContext(cmd), id)
			if err != nil {
				return err
			}
			printDocument(a, doc)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot file to read")
	cmd.Flags().Int64Var(&id, "id", 0, "document id")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	var (
		dbPath string
		id     int64
	)
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete one document from a snapshot",
		Long: `Delete the document --id from --db in place.
A server watching the snapshot picks the change up on its next reload.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id <= 0 {
				return errors.New("--id is required")
			}
			store, done, err := openSnapshot(a, cmd, dbPath, true)
			if err != nil {
				return err
			}
			defer done()

			if err := store.Delete(commandContext(cmd), id); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted document %d from %s\n", id, dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot file to update")
	cmd.Flags().Int64Var(&id, "id", 0, "document id")
	return cmd
}

func printDocument(a *app, doc domain.DocumentEntry) {
	fmt.Fprintf(a.stdout, "ID:       %d\n", doc.ID)
	fmt.Fprintf(a.stdout, "Title:    %s\n", doc.Title)
	fmt.Fprintf(a.stdout, "Category: %s\n", doc.Category)
	if doc.Tags != "" {
		fmt.Fprintf(a.stdout, "Tags:     %s\n", doc.Tags)
	}
	fmt.Fprintf(a.stdout, "Updated:  %s\n", doc.UpdatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(a.stdout, "\n%s\n", doc.Content)
}
