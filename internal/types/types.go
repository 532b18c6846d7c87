package types

import (
	"time"
)

// Role is the account-level role. Eligibility to act in a room is always
// evaluated through the role-specific profile id, never the account id.
type Role string

const (
	RolePatient  Role = "PATIENT"
	RoleNurse    Role = "NURSE"
	RoleDoctor   Role = "DOCTOR"
	RolePharmacy Role = "PHARMACY"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleNurse, RoleDoctor, RolePharmacy, RoleAdmin:
		return true
	}
	return false
}

// HasChatProfile reports whether accounts with this role own a profile row
// that can occupy a room participant slot.
func (r Role) HasChatProfile() bool {
	switch r {
	case RolePatient, RoleNurse, RoleDoctor:
		return true
	}
	return false
}

type User struct {
	Id           int       `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address,omitempty"`
	Role         Role      `json:"role"`
	ProfileId    int       `json:"profile_id,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// RoomVariant tags which participant slots a room carries.
type RoomVariant string

const (
	VariantPatientDoctor RoomVariant = "patient_doctor"
	VariantPatientNurse  RoomVariant = "patient_nurse"
	VariantCareTeam      RoomVariant = "care_team"
)

// Slots returns the roles which occupy a participant slot in this variant.
func (v RoomVariant) Slots() []Role {
	switch v {
	case VariantPatientDoctor:
		return []Role{RolePatient, RoleDoctor}
	case VariantPatientNurse:
		return []Role{RolePatient, RoleNurse}
	case VariantCareTeam:
		return []Role{RolePatient, RoleNurse, RoleDoctor}
	}
	return nil
}

func (v RoomVariant) Valid() bool {
	return v.Slots() != nil
}

const (
	RoomStatusActive   = "active"
	RoomStatusInactive = "inactive"
)

type Room struct {
	Id             int         `json:"id"`
	ExternalId     string      `json:"external_id"`
	Variant        RoomVariant `json:"variant"`
	PatientId      int         `json:"patient_id"`
	NurseId        int         `json:"nurse_id,omitempty"`
	DoctorId       int         `json:"doctor_id,omitempty"`
	Status         string      `json:"status"`
	LastMessage    *Message    `json:"last_message,omitempty"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	CreatedAt      time.Time   `json:"created_at,omitempty"`
}

type Message struct {
	Id         int        `json:"id"`
	RoomId     string     `json:"room_id"`
	SenderId   int        `json:"sender_id"`
	SenderRole Role       `json:"sender_role"`
	Content    string     `json:"content"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

const (
	AppointmentRequested = "requested"
	AppointmentAccepted  = "accepted"
	AppointmentDeclined  = "declined"
	AppointmentCancelled = "cancelled"
)

type Appointment struct {
	Id          int       `json:"id"`
	PatientId   int       `json:"patient_id"`
	DoctorId    int       `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

const (
	PrescriptionIssued = "issued"
	PrescriptionFilled = "filled"
)

type Prescription struct {
	Id           int       `json:"id"`
	PatientId    int       `json:"patient_id"`
	DoctorId     int       `json:"doctor_id"`
	Medication   string    `json:"medication"`
	Dosage       string    `json:"dosage"`
	Instructions string    `json:"instructions,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}
