package services

import (
	"github.com/EO-DataHub/eodhp-group-services/models"
	"github.com/stretchr/testify/mock"
)

type MockGroupRepository struct {
	mock.Mock
}

type MockUserRepository struct {
	mock.Mock
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockGroupRepository) SaveNewEntity(g models.Group) (*models.Group, error) {
	args := m.Called(g)
	group, _ := args.Get(0).(*models.Group)
	return group, args.Error(1)
}

func (m *MockGroupRepository) FindByID(id int) (*models.Group, error) {
	args := m.Called(id)
	group, _ := args.Get(0).(*models.Group)
	return group, args.Error(1)
}

func (m *MockGroupRepository) FindAll() ([]models.Group, error) {
	args := m.Called()
	groups, _ := args.Get(0).([]models.Group)
	return groups, args.Error(1)
}

func (m *MockGroupRepository) DeleteByID(id int) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockGroupRepository) ExistsByID(id int) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockGroupRepository) FindGroupByName(name string) (*models.Group, error) {
	args := m.Called(name)
	group, _ := args.Get(0).(*models.Group)
	return group, args.Error(1)
}

func (m *MockGroupRepository) Update(g models.Group) (*models.Group, error) {
	args := m.Called(g)
	group, _ := args.Get(0).(*models.Group)
	return group, args.Error(1)
}

func (m *MockUserRepository) FindByID(login string) (*models.User, error) {
	args := m.Called(login)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockEventPublisher) Notify(event models.GroupEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockEventPublisher) Close() {
	m.Called()
}
