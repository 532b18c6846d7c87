package database

import (
	"time"

	"github.com/carebridge/carebridge/internal/types"
)

type User struct {
	Id           int
	Name         string
	EmailAddress string
	PasswordHash string
	Role         types.Role
	// ProfileId is the role-specific profile row id (patient, nurse or
	// doctor id). Zero for roles without a chat profile.
	ProfileId int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Room struct {
	Id         int
	ExternalId string
	Variant    types.RoomVariant
	PatientId  int
	// NurseId and DoctorId are zero when the variant has no such slot.
	NurseId        int
	DoctorId       int
	Status         string
	LastActivityAt time.Time
	CreatedAt      time.Time
}

type Message struct {
	Id         int
	RoomId     int
	SenderId   int
	SenderRole types.Role
	Content    string
	IsRead     bool
	ReadAt     *time.Time
	CreatedAt  time.Time
}

type Appointment struct {
	Id          int
	PatientId   int
	DoctorId    int
	ScheduledAt time.Time
	Status      string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Prescription struct {
	Id           int
	PatientId    int
	DoctorId     int
	Medication   string
	Dosage       string
	Instructions string
	Status       string
	CreatedAt    time.Time
}

type CreateAccountParams struct {
	Name         string
	EmailAddress string
	PasswordHash string
	Role         types.Role
}

type GetOrCreateRoomParams struct {
	Variant    types.RoomVariant
	ExternalId string
	PatientId  int
	NurseId    int
	DoctorId   int
}

type CreateMessageParams struct {
	RoomId     int
	SenderId   int
	SenderRole types.Role
	Content    string
}

type CreateAppointmentParams struct {
	PatientId   int
	DoctorId    int
	ScheduledAt time.Time
	Notes       string
}

type CreatePrescriptionParams struct {
	PatientId    int
	DoctorId     int
	Medication   string
	Dosage       string
	Instructions string
}
