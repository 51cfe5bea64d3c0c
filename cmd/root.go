package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/EO-DataHub/eodhp-group-services/db"
	"github.com/EO-DataHub/eodhp-group-services/internal/appconfig"
	awsclient "github.com/EO-DataHub/eodhp-group-services/internal/aws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configPath string
	host       string
	port       int

	appCfg    *appconfig.Config
	connector *db.Connector
)

var rootCmd = &cobra.Command{
	Use:   "group-services",
	Short: "Group Services",
	Long:  `Group Services manages groups of platform users and their memberships.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn",
		"sets the log level")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"path to the config file")
}

// commonSetUp sets up logging, loads the config and connects to the database
func commonSetUp() {
	setLogging(logLevel)

	var err error
	appCfg, err = appconfig.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	password, err := databasePassword(appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve database password")
	}

	builder := db.NewBuilder().
		SetURL(appCfg.Database.URL).
		SetUser(appCfg.Database.User).
		SetPassword(password)

	logger := log.With().Str("component", "db").Logger()
	connector, err = db.NewConnector(builder, &logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to the database")
	}
}

// databasePassword returns the configured password, reading it from AWS Secrets
// Manager when only a secret name is configured.
func databasePassword(cfg *appconfig.Config) (string, error) {
	if cfg.Database.Password != "" || cfg.Database.PasswordSecret == "" {
		return cfg.Database.Password, nil
	}

	awsCfg, err := awsclient.LoadAWSConfig(cfg.AWS.Region)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return awsclient.GetSecretString(ctx, awsclient.NewSecretsManagerClient(awsCfg), cfg.Database.PasswordSecret)
}

func setLogging(level string) {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}
