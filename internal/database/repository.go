package database

import (
	"errors"
	"time"

	"github.com/carebridge/carebridge/internal/types"
)

var (
	// ErrRoomNotFound is returned when a referenced room does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotAuthorized is returned when a caller's role-specific profile id
	// does not occupy a participant slot of the room.
	ErrNotAuthorized = errors.New("not a room participant")
	// ErrDuplicateEmail is returned when registering an email that already
	// has an account.
	ErrDuplicateEmail = errors.New("email already registered")
)

type CareRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	// AccountIdForProfile resolves the account owning a profile row, used
	// to address notifications at room counterparts.
	AccountIdForProfile(role types.Role, profileId int) (int, error)
	// GetOrCreateRoom is idempotent: concurrent calls with an identical
	// participant set yield exactly one persisted room. The second return
	// reports whether the room was created by this call.
	GetOrCreateRoom(params GetOrCreateRoomParams) (Room, bool, error)
	GetRoomByExternalId(externalId string) (Room, error)
	ListRoomsForProfile(role types.Role, profileId int) ([]Room, error)
	// CreateMessage persists a message and bumps the room's last-activity
	// timestamp in the same transaction. Returns ErrRoomNotFound or
	// ErrNotAuthorized on contract violations.
	CreateMessage(params CreateMessageParams) (Message, error)
	// GetRoomMessages returns the room's full history, oldest first.
	GetRoomMessages(roomId int) ([]Message, error)
	// GetLatestMessages returns up to limit most recent messages, newest
	// first, for inbox previews.
	GetLatestMessages(roomId, limit int) ([]Message, error)
	// MarkMessagesRead marks every unread message in the room not sent by
	// readerId as read with the single timestamp readAt. Returns the number
	// of rows affected; zero when nothing was unread.
	MarkMessagesRead(roomId, readerId int, readAt time.Time) (int64, error)
	CreateAppointment(params CreateAppointmentParams) (Appointment, error)
	GetAppointmentById(id int) (Appointment, error)
	UpdateAppointmentStatus(id int, status string) (Appointment, error)
	ListAppointmentsForProfile(role types.Role, profileId int) ([]Appointment, error)
	CreatePrescription(params CreatePrescriptionParams) (Prescription, error)
	ListPrescriptionsForProfile(role types.Role, profileId int) ([]Prescription, error)
}
