package db

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

// RunMigrations applies all pending goose migrations to the database.
func RunMigrations(conn *sql.DB) error {
	goose.SetBaseFS(EmbedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Migrate brings the schema behind the connector up to date.
func (c *Connector) Migrate() error {
	conn, err := c.GetConnection()
	if err != nil {
		return err
	}

	c.Log.Debug().Msg("Database connection is healthy, running migrations")

	if err := RunMigrations(conn); err != nil {
		c.Log.Error().Err(err).Msg("error running migrations")
		return err
	}

	c.Log.Info().Msg("Tables initialized successfully")
	return nil
}
