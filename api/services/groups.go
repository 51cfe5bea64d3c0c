package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/EO-DataHub/eodhp-group-services/api/middleware"
	"github.com/EO-DataHub/eodhp-group-services/db"
	"github.com/EO-DataHub/eodhp-group-services/internal/authn"
	"github.com/EO-DataHub/eodhp-group-services/internal/events"
	"github.com/EO-DataHub/eodhp-group-services/models"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

var errUnknownLogin = errors.New("unknown user")

// CreateGroupService creates a group from logins supplied in the request body.
func CreateGroupService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	claims, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims)
	if !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return
	}

	group, ok := decodeGroupRequest(svc, w, r)
	if !ok {
		return
	}

	saved, err := svc.Groups.SaveNewEntity(group)
	if err != nil {
		writeRepositoryError(logger, w, err, "Database error creating group")
		return
	}

	notify(svc, logger, events.NewGroupEvent(saved.ID, saved.Name, events.ActionCreate, claims.Username))

	logger.Info().Int("group_id", saved.ID).Str("name", saved.Name).Msg("Group created")
	WriteResponse(w, http.StatusCreated, models.Response{
		Success: 1,
		Data:    models.GroupResponse{Group: *saved},
	}, fmt.Sprintf("%s/groups/%d", basePath(svc), saved.ID))
}

// GetGroupsService lists all groups, or looks one up by exact name when ?name= is given.
func GetGroupsService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	if name, ok := r.URL.Query()["name"]; ok {
		group, err := svc.Groups.FindGroupByName(name[0])
		if err != nil {
			writeRepositoryError(logger, w, err, "Database error retrieving group by name")
			return
		}

		groups := []models.Group{}
		if group != nil {
			groups = append(groups, *group)
		}
		WriteResponse(w, http.StatusOK, models.Response{
			Success: 1,
			Data:    models.GroupsResponse{Groups: groups},
		})
		return
	}

	groups, err := svc.Groups.FindAll()
	if err != nil {
		writeRepositoryError(logger, w, err, "Database error retrieving groups")
		return
	}

	logger.Info().Int("group_count", len(groups)).Msg("Successfully retrieved groups")
	WriteResponse(w, http.StatusOK, models.Response{
		Success: 1,
		Data:    models.GroupsResponse{Groups: groups},
	})
}

// GetGroupService retrieves a single group.
func GetGroupService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	groupID, ok := parseGroupID(w, r)
	if !ok {
		return
	}

	group, err := svc.Groups.FindByID(groupID)
	if err != nil {
		writeRepositoryError(logger, w, err, "Database error retrieving group")
		return
	}
	if group == nil {
		WriteError(w, http.StatusNotFound, "not_found", fmt.Errorf("group %d does not exist", groupID))
		return
	}

	WriteResponse(w, http.StatusOK, models.Response{
		Success: 1,
		Data:    models.GroupResponse{Group: *group},
	})
}

// UpdateGroupService replaces a group's name, owner and members. Only the owner
// or an administrator may do this.
func UpdateGroupService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	groupID, existing, claims, ok := authorizeGroupChange(svc, w, r)
	if !ok {
		return
	}

	group, ok := decodeGroupRequest(svc, w, r)
	if !ok {
		return
	}
	group.ID = groupID

	updated, err := svc.Groups.Update(group)
	if err != nil {
		writeRepositoryError(logger, w, err, "Database error updating group")
		return
	}

	notify(svc, logger, events.NewGroupEvent(updated.ID, updated.Name, events.ActionUpdate, claims.Username))

	logger.Info().Int("group_id", groupID).Str("previous_name", existing.Name).
		Str("name", updated.Name).Msg("Group updated")
	WriteResponse(w, http.StatusOK, models.Response{
		Success: 1,
		Data:    models.GroupResponse{Group: *updated},
	})
}

// DeleteGroupService removes a group. Only the owner or an administrator may do this.
func DeleteGroupService(svc *Service, w http.ResponseWriter, r *http.Request) {

	logger := zerolog.Ctx(r.Context())

	groupID, existing, claims, ok := authorizeGroupChange(svc, w, r)
	if !ok {
		return
	}

	if err := svc.Groups.DeleteByID(groupID); err != nil {
		writeRepositoryError(logger, w, err, "Database error deleting group")
		return
	}

	notify(svc, logger, events.NewGroupEvent(groupID, existing.Name, events.ActionDelete, claims.Username))

	logger.Info().Int("group_id", groupID).Msg("Group deleted")
	WriteResponse(w, http.StatusNoContent, nil)
}

// authorizeGroupChange loads the group named in the path and checks the caller may modify it.
func authorizeGroupChange(svc *Service, w http.ResponseWriter, r *http.Request) (int, *models.Group, authn.Claims, bool) {

	logger := zerolog.Ctx(r.Context())

	claims, ok := r.Context().Value(middleware.ClaimsKey).(authn.Claims)
	if !ok {
		logger.Warn().Msg("Unauthorized request: missing claims")
		WriteResponse(w, http.StatusUnauthorized, nil)
		return 0, nil, claims, false
	}

	groupID, ok := parseGroupID(w, r)
	if !ok {
		return 0, nil, claims, false
	}

	existing, err := svc.Groups.FindByID(groupID)
	if err != nil {
		writeRepositoryError(logger, w, err, "Database error retrieving group")
		return 0, nil, claims, false
	}
	if existing == nil {
		WriteError(w, http.StatusNotFound, "not_found", fmt.Errorf("group %d does not exist", groupID))
		return 0, nil, claims, false
	}

	if existing.Owner.Login != claims.Username && !claims.HasRole(authn.AdminRole) {
		logger.Warn().Int("group_id", groupID).Str("user", claims.Username).Msg("Access denied: user does not own group")
		WriteError(w, http.StatusForbidden, "forbidden", errors.New("only the group owner may modify this group"))
		return 0, nil, claims, false
	}

	return groupID, existing, claims, true
}

// decodeGroupRequest reads a GroupRequest and resolves its logins through the user repository.
func decodeGroupRequest(svc *Service, w http.ResponseWriter, r *http.Request) (models.Group, bool) {

	logger := zerolog.Ctx(r.Context())

	var req models.GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Invalid request payload")
		WriteError(w, http.StatusBadRequest, "invalid_request", errors.New("invalid request payload"))
		return models.Group{}, false
	}

	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Owner) == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", errors.New("name and owner are required"))
		return models.Group{}, false
	}

	group, err := resolveGroupRequest(svc.Users, req)
	if err != nil {
		if errors.Is(err, errUnknownLogin) {
			WriteError(w, http.StatusBadRequest, "unknown_user", err)
		} else {
			logger.Error().Err(err).Msg("Database error resolving users")
			WriteError(w, http.StatusInternalServerError, "storage_error", errors.New("failed to resolve users"))
		}
		return models.Group{}, false
	}

	return group, true
}

// resolveGroupRequest turns the logins of a request into users.
func resolveGroupRequest(users db.UserRepository, req models.GroupRequest) (models.Group, error) {
	owner, err := resolveLogin(users, req.Owner)
	if err != nil {
		return models.Group{}, err
	}

	members := make([]models.User, 0, len(req.Members))
	for _, login := range req.Members {
		m, err := resolveLogin(users, login)
		if err != nil {
			return models.Group{}, err
		}
		members = append(members, m)
	}

	return models.Group{Name: req.Name, Owner: owner, Members: members}, nil
}

func resolveLogin(users db.UserRepository, login string) (models.User, error) {
	u, err := users.FindByID(login)
	if err != nil {
		return models.User{}, err
	}
	if u == nil {
		return models.User{}, fmt.Errorf("%w: %s", errUnknownLogin, login)
	}
	return *u, nil
}

// writeRepositoryError maps repository errors onto HTTP statuses.
func writeRepositoryError(logger *zerolog.Logger, w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, db.ErrInvalidArgument):
		WriteError(w, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, db.ErrGroupNotFound):
		WriteError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, db.ErrDuplicateName):
		WriteError(w, http.StatusConflict, "duplicate_name", errors.New("a group with this name already exists"))
	case errors.Is(err, db.ErrUnknownUser):
		WriteError(w, http.StatusBadRequest, "unknown_user", errors.New("group references a user that does not exist"))
	case errors.Is(err, db.ErrConnection):
		logger.Error().Err(err).Msg(msg)
		WriteError(w, http.StatusServiceUnavailable, "unavailable", errors.New("database unavailable"))
	default:
		logger.Error().Err(err).Msg(msg)
		WriteError(w, http.StatusInternalServerError, "storage_error", errors.New("internal storage error"))
	}
}

// notify publishes an event. Failures are logged; the change is already committed.
func notify(svc *Service, logger *zerolog.Logger, event models.GroupEvent) {
	if svc.Publisher == nil {
		return
	}
	if err := svc.Publisher.Notify(event); err != nil {
		logger.Error().Err(err).Int("group_id", event.GroupID).Str("action", event.Action).Msg("Failed to publish group event")
	}
}

func parseGroupID(w http.ResponseWriter, r *http.Request) (int, bool) {
	groupID, err := strconv.Atoi(mux.Vars(r)["group-id"])
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", errors.New("group id must be an integer"))
		return 0, false
	}
	return groupID, true
}

func basePath(svc *Service) string {
	if svc.Config == nil {
		return ""
	}
	return strings.TrimSuffix(svc.Config.BasePath, "/")
}
