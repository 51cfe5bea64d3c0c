package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EO-DataHub/eodhp-group-services/api/middleware"
	"github.com/EO-DataHub/eodhp-group-services/db"
	"github.com/EO-DataHub/eodhp-group-services/internal/appconfig"
	"github.com/EO-DataHub/eodhp-group-services/internal/authn"
	"github.com/EO-DataHub/eodhp-group-services/internal/events"
	"github.com/EO-DataHub/eodhp-group-services/models"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	vasya = models.User{ID: 1, Login: "vasya092", Name: "Vasya"}
	wqa   = models.User{ID: 3, Login: "wqa092", Name: "Wqa"}
	kolya = models.User{ID: 12, Login: "kolya073", Name: "Kolya"}
)

type testService struct {
	svc       *Service
	groups    *MockGroupRepository
	users     *MockUserRepository
	publisher *MockEventPublisher
}

func newTestService() *testService {
	groups := new(MockGroupRepository)
	users := new(MockUserRepository)
	publisher := new(MockEventPublisher)

	users.On("FindByID", vasya.Login).Return(&vasya, nil).Maybe()
	users.On("FindByID", wqa.Login).Return(&wqa, nil).Maybe()
	users.On("FindByID", kolya.Login).Return(&kolya, nil).Maybe()
	users.On("FindByID", mock.Anything).Return(nil, nil).Maybe()

	return &testService{
		svc: &Service{
			Config:    &appconfig.Config{BasePath: "/api"},
			Groups:    groups,
			Users:     users,
			Publisher: publisher,
		},
		groups:    groups,
		users:     users,
		publisher: publisher,
	}
}

func newRequest(t *testing.T, method, target string, body interface{}, username string, roles ...string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	if username != "" {
		claims := authn.Claims{Username: username}
		claims.RealmAccess.Roles = roles
		req = req.WithContext(context.WithValue(req.Context(), middleware.ClaimsKey, claims))
	}
	return req
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, data interface{}) models.Response {
	t.Helper()

	var resp struct {
		models.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp.Response
}

func eventFor(action string, groupID int, actor string) interface{} {
	return mock.MatchedBy(func(e models.GroupEvent) bool {
		return e.Action == action && e.GroupID == groupID && e.Actor == actor && e.EventID != ""
	})
}

func TestCreateGroupService(t *testing.T) {
	ts := newTestService()

	want := models.Group{Name: "IP-94", Owner: vasya, Members: []models.User{vasya, kolya}}
	saved := want
	saved.ID = 4

	ts.groups.On("SaveNewEntity", want).Return(&saved, nil)
	ts.publisher.On("Notify", eventFor(events.ActionCreate, 4, "vasya092")).Return(nil)

	req := newRequest(t, http.MethodPost, "/api/groups",
		models.GroupRequest{Name: "IP-94", Owner: "vasya092", Members: []string{"vasya092", "kolya073"}}, "vasya092")
	rr := httptest.NewRecorder()

	CreateGroupService(ts.svc, rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "/api/groups/4", rr.Header().Get("Location"))

	var body models.GroupResponse
	resp := decodeResponse(t, rr, &body)
	assert.Equal(t, 1, resp.Success)
	assert.Equal(t, saved, body.Group)

	ts.groups.AssertExpectations(t)
	ts.publisher.AssertExpectations(t)
}

func TestCreateGroupService_UnknownLogin(t *testing.T) {
	ts := newTestService()

	req := newRequest(t, http.MethodPost, "/api/groups",
		models.GroupRequest{Name: "IP-94", Owner: "vasya092", Members: []string{"ghost"}}, "vasya092")
	rr := httptest.NewRecorder()

	CreateGroupService(ts.svc, rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeResponse(t, rr, nil)
	assert.Equal(t, "unknown_user", resp.ErrorCode)
	ts.groups.AssertNotCalled(t, "SaveNewEntity", mock.Anything)
}

func TestCreateGroupService_DuplicateName(t *testing.T) {
	ts := newTestService()

	ts.groups.On("SaveNewEntity", mock.Anything).
		Return(nil, fmt.Errorf("error inserting group: %w", db.ErrDuplicateName))

	req := newRequest(t, http.MethodPost, "/api/groups",
		models.GroupRequest{Name: "First Group", Owner: "vasya092"}, "vasya092")
	rr := httptest.NewRecorder()

	CreateGroupService(ts.svc, rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	ts.publisher.AssertNotCalled(t, "Notify", mock.Anything)
}

func TestCreateGroupService_BadRequests(t *testing.T) {
	ts := newTestService()

	tests := map[string]*http.Request{
		"missing owner": newRequest(t, http.MethodPost, "/api/groups", models.GroupRequest{Name: "IP-94"}, "vasya092"),
		"not json":      httptest.NewRequest(http.MethodPost, "/api/groups", bytes.NewBufferString("{")),
	}
	tests["not json"] = tests["not json"].WithContext(
		context.WithValue(context.Background(), middleware.ClaimsKey, authn.Claims{Username: "vasya092"}))

	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			CreateGroupService(ts.svc, rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	rr := httptest.NewRecorder()
	CreateGroupService(ts.svc, rr, newRequest(t, http.MethodPost, "/api/groups", models.GroupRequest{}, ""))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetGroupsService(t *testing.T) {
	ts := newTestService()

	groups := []models.Group{
		{ID: 1, Name: "First Group", Owner: vasya, Members: []models.User{vasya, wqa}},
		{ID: 3, Name: "Third Group", Owner: kolya, Members: []models.User{}},
	}
	ts.groups.On("FindAll").Return(groups, nil)

	rr := httptest.NewRecorder()
	GetGroupsService(ts.svc, rr, newRequest(t, http.MethodGet, "/api/groups", nil, "wqa092"))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body models.GroupsResponse
	decodeResponse(t, rr, &body)
	assert.Equal(t, groups, body.Groups)
}

func TestGetGroupsService_ByName(t *testing.T) {
	ts := newTestService()

	group := models.Group{ID: 1, Name: "First Group", Owner: vasya, Members: []models.User{vasya}}
	ts.groups.On("FindGroupByName", "First Group").Return(&group, nil)
	ts.groups.On("FindGroupByName", "HONOR").Return(nil, nil)

	rr := httptest.NewRecorder()
	GetGroupsService(ts.svc, rr, newRequest(t, http.MethodGet, "/api/groups?name=First+Group", nil, "wqa092"))
	var body models.GroupsResponse
	decodeResponse(t, rr, &body)
	assert.Equal(t, []models.Group{group}, body.Groups)

	rr = httptest.NewRecorder()
	GetGroupsService(ts.svc, rr, newRequest(t, http.MethodGet, "/api/groups?name=HONOR", nil, "wqa092"))
	body = models.GroupsResponse{}
	decodeResponse(t, rr, &body)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, body.Groups)

	ts.groups.AssertNotCalled(t, "FindAll")
}

func TestGetGroupService(t *testing.T) {
	ts := newTestService()

	group := models.Group{ID: 1, Name: "First Group", Owner: vasya, Members: []models.User{vasya}}
	ts.groups.On("FindByID", 1).Return(&group, nil)
	ts.groups.On("FindByID", 99).Return(nil, nil)
	ts.groups.On("FindByID", 5).Return(nil, fmt.Errorf("ping: %w", db.ErrConnection))

	tests := []struct {
		id     string
		status int
	}{
		{"1", http.StatusOK},
		{"99", http.StatusNotFound},
		{"5", http.StatusServiceUnavailable},
		{"abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			req := newRequest(t, http.MethodGet, "/api/groups/"+tt.id, nil, "wqa092")
			req = mux.SetURLVars(req, map[string]string{"group-id": tt.id})
			rr := httptest.NewRecorder()

			GetGroupService(ts.svc, rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestUpdateGroupService(t *testing.T) {
	ts := newTestService()

	existing := models.Group{ID: 1, Name: "First Group", Owner: vasya, Members: []models.User{vasya, wqa}}
	want := models.Group{ID: 1, Name: "Renamed", Owner: vasya, Members: []models.User{kolya}}

	ts.groups.On("FindByID", 1).Return(&existing, nil)
	ts.groups.On("Update", want).Return(&want, nil)
	ts.publisher.On("Notify", eventFor(events.ActionUpdate, 1, "vasya092")).Return(nil)

	req := newRequest(t, http.MethodPut, "/api/groups/1",
		models.GroupRequest{Name: "Renamed", Owner: "vasya092", Members: []string{"kolya073"}}, "vasya092")
	req = mux.SetURLVars(req, map[string]string{"group-id": "1"})
	rr := httptest.NewRecorder()

	UpdateGroupService(ts.svc, rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body models.GroupResponse
	decodeResponse(t, rr, &body)
	assert.Equal(t, want, body.Group)

	ts.groups.AssertExpectations(t)
	ts.publisher.AssertExpectations(t)
}

func TestUpdateGroupService_Forbidden(t *testing.T) {
	ts := newTestService()

	existing := models.Group{ID: 1, Name: "First Group", Owner: vasya, Members: []models.User{}}
	ts.groups.On("FindByID", 1).Return(&existing, nil)

	req := newRequest(t, http.MethodPut, "/api/groups/1",
		models.GroupRequest{Name: "Mine now", Owner: "wqa092"}, "wqa092")
	req = mux.SetURLVars(req, map[string]string{"group-id": "1"})
	rr := httptest.NewRecorder()

	UpdateGroupService(ts.svc, rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	ts.groups.AssertNotCalled(t, "Update", mock.Anything)
}

func TestUpdateGroupService_AdminMayUpdate(t *testing.T) {
	ts := newTestService()

	existing := models.Group{ID: 1, Name: "First Group", Owner: vasya, Members: []models.User{}}
	ts.groups.On("FindByID", 1).Return(&existing, nil)
	ts.groups.On("Update", mock.Anything).Return(nil, errors.New("connection reset"))

	req := newRequest(t, http.MethodPut, "/api/groups/1",
		models.GroupRequest{Name: "First Group", Owner: "wqa092"}, "kolya073", authn.AdminRole)
	req = mux.SetURLVars(req, map[string]string{"group-id": "1"})
	rr := httptest.NewRecorder()

	UpdateGroupService(ts.svc, rr, req)

	// Authorized, so the repository was reached and its failure surfaced
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	ts.groups.AssertCalled(t, "Update", mock.Anything)
}

func TestDeleteGroupService(t *testing.T) {
	ts := newTestService()

	existing := models.Group{ID: 2, Name: "Second Group", Owner: wqa, Members: []models.User{}}
	ts.groups.On("FindByID", 2).Return(&existing, nil)
	ts.groups.On("FindByID", 7).Return(nil, nil)
	ts.groups.On("DeleteByID", 2).Return(nil)
	ts.publisher.On("Notify", eventFor(events.ActionDelete, 2, "wqa092")).Return(errors.New("pulsar down"))

	req := newRequest(t, http.MethodDelete, "/api/groups/2", nil, "wqa092")
	req = mux.SetURLVars(req, map[string]string{"group-id": "2"})
	rr := httptest.NewRecorder()

	DeleteGroupService(ts.svc, rr, req)

	// Publishing failures do not undo the delete
	assert.Equal(t, http.StatusNoContent, rr.Code)
	ts.groups.AssertExpectations(t)
	ts.publisher.AssertExpectations(t)

	req = newRequest(t, http.MethodDelete, "/api/groups/7", nil, "wqa092")
	req = mux.SetURLVars(req, map[string]string{"group-id": "7"})
	rr = httptest.NewRecorder()

	DeleteGroupService(ts.svc, rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	ts.groups.AssertNotCalled(t, "DeleteByID", 7)
}
