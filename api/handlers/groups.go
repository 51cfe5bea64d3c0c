package handlers

import (
	"net/http"

	"github.com/EO-DataHub/eodhp-group-services/api/middleware"
	"github.com/EO-DataHub/eodhp-group-services/api/services"
	"github.com/gorilla/mux"
)

func CreateGroup(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services.CreateGroupService(svc, w, r)
	}
}

func GetGroups(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services.GetGroupsService(svc, w, r)
	}
}

func GetGroup(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services.GetGroupService(svc, w, r)
	}
}

func UpdateGroup(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services.UpdateGroupService(svc, w, r)
	}
}

func DeleteGroup(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services.DeleteGroupService(svc, w, r)
	}
}

// RegisterRoutes mounts the group routes under basePath behind the logging and JWT middleware.
func RegisterRoutes(r *mux.Router, basePath string, svc *services.Service) {
	api := r.PathPrefix(basePath).Subrouter()

	api.Use(middleware.WithLogger)
	api.Use(middleware.JWTMiddleware)

	api.HandleFunc("/groups", CreateGroup(svc)).Methods(http.MethodPost)
	api.HandleFunc("/groups", GetGroups(svc)).Methods(http.MethodGet)
	api.HandleFunc("/groups/{group-id:[0-9-]+}", GetGroup(svc)).Methods(http.MethodGet)
	api.HandleFunc("/groups/{group-id:[0-9-]+}", UpdateGroup(svc)).Methods(http.MethodPut)
	api.HandleFunc("/groups/{group-id:[0-9-]+}", DeleteGroup(svc)).Methods(http.MethodDelete)
}
