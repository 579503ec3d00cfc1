// Command admits-load creates the admits schema and bulk-loads historical
// records from CSV into a SQL store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/admitcast/pkg/logger"
)

var (
	driver    string
	dsn       string
	logLevel  string
	logFormat string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "admits-load",
		Short: "Manage the historical admissions store",
		Long: `admits-load prepares the SQL store used by the admitcast forecasting
service and fills it with decided and undecided applicants from CSV exports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			return logger.SetLevelString(logLevel)
		},
	}

	root.PersistentFlags().StringVar(&driver, "driver", "sqlite3", "database driver (sqlite3, mysql)")
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("ADMITCAST_DATABASE_DSN"), "database DSN (default $ADMITCAST_DATABASE_DSN)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	root.AddCommand(migrateCmd())
	root.AddCommand(loadCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
