package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/admitcast/internal/adapters/repository"
	"github.com/okian/admitcast/pkg/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the admits table and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			logger.Get().Info(cmd.Context(), "schema is up to date", logger.String("driver", driver))
			return nil
		},
	}
}

// openStore connects and migrates so every command sees the schema.
func openStore(ctx context.Context) (*repository.SQLStore, error) {
	store, err := repository.NewSQLStore(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
