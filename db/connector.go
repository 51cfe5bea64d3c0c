package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const pingTimeout = 5 * time.Second

// Builder collects the options used to configure a Connector.
type Builder struct {
	url      string
	user     string
	password string
}

// NewBuilder returns an empty connector configuration.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetURL sets the database URL, e.g. postgresql://localhost:5432/experiment.
func (b *Builder) SetURL(u string) *Builder {
	b.url = u
	return b
}

// SetUser sets the database user.
func (b *Builder) SetUser(user string) *Builder {
	b.user = user
	return b
}

// SetPassword sets the database password.
func (b *Builder) SetPassword(password string) *Builder {
	b.password = password
	return b
}

// DSN builds the lib/pq connection string from the configured options.
func (b *Builder) DSN() (string, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(b.url), "jdbc:")
	if raw == "" {
		return "", invalidArgument("database url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", invalidArgument("malformed database url: %v", err)
	}

	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", invalidArgument("unsupported database url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", invalidArgument("database url has no host")
	}
	if strings.Trim(u.Path, "/") == "" {
		return "", invalidArgument("database url has no database name")
	}

	// Explicit user and password override anything embedded in the url
	switch {
	case b.user != "" && b.password != "":
		u.User = url.UserPassword(b.user, b.password)
	case b.user != "":
		u.User = url.User(b.user)
	}

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Connector owns the single connection used by the repositories.
type Connector struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
	Log    *zerolog.Logger
}

// NewConnector opens the database described by the builder and checks that it is reachable.
func NewConnector(b *Builder, log *zerolog.Logger) (*Connector, error) {
	dsn, err := b.DSN()
	if err != nil {
		log.Error().Err(err).Msg("Invalid database configuration")
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database connection")
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	// One live connection, reused by every repository call
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("Database connection failed during ping")
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	log.Debug().Msg("Database connection established")

	return &Connector{db: db, Log: log}, nil
}

// GetConnection returns the live connection handle.
func (c *Connector) GetConnection() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.db == nil {
		return nil, fmt.Errorf("%w: connector is closed", ErrConnection)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		c.Log.Error().Err(err).Msg("Database connection ping failed")
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	return c.db, nil
}

// Close releases the connection. Calling Close more than once is a no-op.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.db.Close(); err != nil {
		return err
	}
	c.Log.Info().Msg("database connection closed")

	return nil
}
