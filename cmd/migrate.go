package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "init-db-migrate",
	Short: "Create the group tables and run database migrations",
	Long:  `This job applies the embedded goose migrations to the configured database.`,
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, connect to the database and set up logging
		commonSetUp()
		defer connector.Close()

		log.Info().Msg("Running migrations...")
		if err := connector.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		log.Info().Msg("Migrations complete")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
