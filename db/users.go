package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/EO-DataHub/eodhp-group-services/models"
	"github.com/rs/zerolog"
)

// UserRepository resolves user references held by groups.
type UserRepository interface {
	// FindByID returns the user with the given login, or nil if there is none.
	FindByID(login string) (*models.User, error)
}

// UserDB is the PostgreSQL backed UserRepository.
type UserDB struct {
	Connector *Connector
	Log       *zerolog.Logger
}

// NewUserDB returns a user repository using the connector's connection.
func NewUserDB(connector *Connector, log *zerolog.Logger) *UserDB {
	return &UserDB{Connector: connector, Log: log}
}

// FindByID retrieves a single user by login.
func (u *UserDB) FindByID(login string) (*models.User, error) {
	return u.findOne(`SELECT id, login, name, email FROM users WHERE login = $1`, login)
}

// FindByNumericID retrieves a single user by its numeric id.
func (u *UserDB) FindByNumericID(id int) (*models.User, error) {
	return u.findOne(`SELECT id, login, name, email FROM users WHERE id = $1`, id)
}

// SaveNewEntity inserts a user and returns it with its assigned id.
func (u *UserDB) SaveNewEntity(user models.User) (*models.User, error) {
	if strings.TrimSpace(user.Login) == "" {
		return nil, invalidArgument("user login is required")
	}

	conn, err := u.Connector.GetConnection()
	if err != nil {
		return nil, err
	}

	err = conn.QueryRow(`
		INSERT INTO users (login, name, email)
		VALUES ($1, $2, $3)
		RETURNING id`,
		user.Login, user.Name, user.Email).Scan(&user.ID)
	if err != nil {
		u.Log.Error().Err(err).Str("login", user.Login).Msg("error inserting user")
		return nil, classifyError("error inserting user", err)
	}

	return &user, nil
}

func (u *UserDB) findOne(query string, arg interface{}) (*models.User, error) {
	conn, err := u.Connector.GetConnection()
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := conn.QueryRow(query, arg).Scan(&user.ID, &user.Login, &user.Name, &user.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyError("error retrieving user", err)
	}

	return &user, nil
}
