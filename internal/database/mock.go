package database

import (
	"time"

	"github.com/carebridge/carebridge/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockCareRepository struct {
	mock.Mock
}

func (m *MockCareRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCareRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCareRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCareRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCareRepository) AccountIdForProfile(role types.Role, profileId int) (int, error) {
	args := m.Called(role, profileId)
	return args.Int(0), args.Error(1)
}
func (m *MockCareRepository) GetOrCreateRoom(params GetOrCreateRoomParams) (Room, bool, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Bool(1), args.Error(2)
}
func (m *MockCareRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockCareRepository) ListRoomsForProfile(role types.Role, profileId int) ([]Room, error) {
	args := m.Called(role, profileId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockCareRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockCareRepository) GetRoomMessages(roomId int) ([]Message, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockCareRepository) GetLatestMessages(roomId, limit int) ([]Message, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockCareRepository) MarkMessagesRead(roomId, readerId int, readAt time.Time) (int64, error) {
	args := m.Called(roomId, readerId, readAt)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockCareRepository) CreateAppointment(params CreateAppointmentParams) (Appointment, error) {
	args := m.Called(params)
	return args.Get(0).(Appointment), args.Error(1)
}
func (m *MockCareRepository) GetAppointmentById(id int) (Appointment, error) {
	args := m.Called(id)
	return args.Get(0).(Appointment), args.Error(1)
}
func (m *MockCareRepository) UpdateAppointmentStatus(id int, status string) (Appointment, error) {
	args := m.Called(id, status)
	return args.Get(0).(Appointment), args.Error(1)
}
func (m *MockCareRepository) ListAppointmentsForProfile(role types.Role, profileId int) ([]Appointment, error) {
	args := m.Called(role, profileId)
	return args.Get(0).([]Appointment), args.Error(1)
}
func (m *MockCareRepository) CreatePrescription(params CreatePrescriptionParams) (Prescription, error) {
	args := m.Called(params)
	return args.Get(0).(Prescription), args.Error(1)
}
func (m *MockCareRepository) ListPrescriptionsForProfile(role types.Role, profileId int) ([]Prescription, error) {
	args := m.Called(role, profileId)
	return args.Get(0).([]Prescription), args.Error(1)
}
