package services

import (
	"github.com/EO-DataHub/eodhp-group-services/db"
	"github.com/EO-DataHub/eodhp-group-services/internal/appconfig"
	"github.com/EO-DataHub/eodhp-group-services/internal/events"
)

// Service contains all shared dependencies for handlers.
type Service struct {
	Config    *appconfig.Config
	Groups    db.GroupRepository
	Users     db.UserRepository
	Publisher events.Notifier
}
