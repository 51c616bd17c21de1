package migrate

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/config"
	dbmigrate "github.com/mpapenbr/sequential/pkg/db/migrate"
	"github.com/mpapenbr/sequential/pkg/server"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs the migration of the archive database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&config.MigrationSourceURL,
		"migration-source-url",
		"m",
		"",
		"url to migration files (default: migrations embedded in the binary)")

	return cmd
}

func startMigration(ctx context.Context) error {
	if config.DB == "" {
		return errors.New("no database configured (--db)")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := server.WaitForRequiredServices(ctx, config.DB); err != nil {
		return err
	}
	if config.MigrationSourceURL == "" {
		log.Info("Using embedded migrations")
		return dbmigrate.MigrateDB(config.DB)
	}
	log.Info("Using migrations files at", log.String("source", config.MigrationSourceURL))
	return dbmigrate.MigrateFrom(config.MigrationSourceURL, config.DB)
}
