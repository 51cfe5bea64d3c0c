package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/EO-DataHub/eodhp-group-services/db"
	"github.com/EO-DataHub/eodhp-group-services/internal/events"
	"github.com/EO-DataHub/eodhp-group-services/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run the Pulsar consumer that writes an audit log of group events",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, connect to the database and set up logging
		commonSetUp()
		defer connector.Close()

		// Initialize event consumer
		consumer, err := events.NewEventConsumer(appCfg.Pulsar.URL, appCfg.Pulsar.TopicConsumer, appCfg.Pulsar.Subscription)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event consumer")
		}
		defer consumer.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := log.With().Str("component", "audit").Logger()
		logger.Info().Msg("Waiting for group events...")

		users := db.NewUserDB(connector, &logger)
		groups := db.NewGroupRepository(connector, users, &logger)

		err = consumer.Consume(ctx, &logger, func(event models.GroupEvent) error {
			// Record whether the group still exists when the event is processed
			exists, err := groups.ExistsByID(event.GroupID)
			if err != nil {
				return err
			}

			logger.Log().
				Str("event_id", event.EventID).
				Int("group_id", event.GroupID).
				Str("name", event.Name).
				Str("action", event.Action).
				Str("actor", event.Actor).
				Int64("timestamp", event.Timestamp).
				Bool("group_exists", exists).
				Msg("group event")
			return nil
		})
		if err != nil {
			log.Error().Err(err).Msg("Consumer stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}
