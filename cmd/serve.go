package cmd

import (
	"fmt"
	"net/http"

	"github.com/EO-DataHub/eodhp-group-services/api/handlers"
	"github.com/EO-DataHub/eodhp-group-services/api/services"
	"github.com/EO-DataHub/eodhp-group-services/db"
	"github.com/EO-DataHub/eodhp-group-services/internal/events"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server for handling group API requests",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, connect to the database and set up logging
		commonSetUp()
		defer connector.Close()

		// Initialize event publisher
		var publisher events.Notifier = events.NopNotifier{}
		if appCfg.Pulsar.URL != "" {
			p, err := events.NewEventPublisher(appCfg.Pulsar.URL, appCfg.Pulsar.TopicProducer)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize event publisher")
			}
			publisher = p
		} else {
			log.Warn().Msg("No Pulsar URL configured, group events will not be published")
		}
		defer publisher.Close()

		repoLogger := log.With().Str("component", "repository").Logger()
		users := db.NewUserDB(connector, &repoLogger)

		service := &services.Service{
			Config:    appCfg,
			Groups:    db.NewGroupRepository(connector, users, &repoLogger),
			Users:     users,
			Publisher: publisher,
		}

		// Create routes
		r := mux.NewRouter()
		handlers.RegisterRoutes(r, appCfg.BasePath, service)

		log.Info().Msg(fmt.Sprintf("Server started at %s:%d", host, port))

		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", host, port), r); err != nil {
			log.Error().Err(err).Msg("could not start server")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "host to run the server on")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the server on")
}
