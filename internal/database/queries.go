package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carebridge/carebridge/internal/types"
	"github.com/lib/pq"
)

// profileTable maps chat-capable roles to their profile tables. Role names
// never come from user input here, but the whitelist keeps table names out
// of the query-building path entirely.
func profileTable(role types.Role) (string, bool) {
	switch role {
	case types.RolePatient:
		return "patients", true
	case types.RoleNurse:
		return "nurses", true
	case types.RoleDoctor:
		return "doctors", true
	}
	return "", false
}

func (db *PgCareRepository) CreateAccount(params CreateAccountParams) (User, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback()

	var u User
	err = tx.QueryRow(
		"INSERT INTO accounts (name, email, password_hash, role, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, name, email, role, created_at, updated_at",
		params.Name,
		params.EmailAddress,
		params.PasswordHash,
		params.Role,
		time.Now().UTC(),
	).Scan(&u.Id, &u.Name, &u.EmailAddress, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}

	if table, ok := profileTable(u.Role); ok {
		err = tx.QueryRow(
			fmt.Sprintf("INSERT INTO %s (account_id) VALUES ($1) RETURNING id", table),
			u.Id,
		).Scan(&u.ProfileId)
		if err != nil {
			return User{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return User{}, err
	}

	return u, nil
}

const accountQuery = "SELECT a.id, a.name, a.email, a.password_hash, a.role, a.created_at, a.updated_at, " +
	"COALESCE(p.id, n.id, d.id, 0) " +
	"FROM accounts a " +
	"LEFT JOIN patients p ON p.account_id = a.id AND a.role = 'PATIENT' " +
	"LEFT JOIN nurses n ON n.account_id = a.id AND a.role = 'NURSE' " +
	"LEFT JOIN doctors d ON d.account_id = a.id AND a.role = 'DOCTOR' "

func scanAccount(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.ProfileId,
	)
	return u, err
}

func (db *PgCareRepository) GetAccountById(accountId int) (User, error) {
	return scanAccount(db.conn.QueryRow(accountQuery+"WHERE a.id = $1 LIMIT 1", accountId))
}

func (db *PgCareRepository) GetAccountByEmail(email string) (User, error) {
	return scanAccount(db.conn.QueryRow(accountQuery+"WHERE a.email = $1 LIMIT 1", email))
}

func (db *PgCareRepository) AccountIdForProfile(role types.Role, profileId int) (int, error) {
	table, ok := profileTable(role)
	if !ok {
		return 0, fmt.Errorf("role %q has no profile table", role)
	}

	var accountId int
	err := db.conn.QueryRow(
		fmt.Sprintf("SELECT account_id FROM %s WHERE id = $1 LIMIT 1", table),
		profileId,
	).Scan(&accountId)

	return accountId, err
}

const roomColumns = "id, external_id, variant, patient_id, COALESCE(nurse_id, 0), COALESCE(doctor_id, 0), status, last_activity_at, created_at"

func scanRoom(row *sql.Row) (Room, error) {
	var r Room
	err := row.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Variant,
		&r.PatientId,
		&r.NurseId,
		&r.DoctorId,
		&r.Status,
		&r.LastActivityAt,
		&r.CreatedAt,
	)
	return r, err
}

// GetOrCreateRoom inserts the room unless one already exists for the same
// participant tuple. The unique index on (variant, patient_id,
// coalesce(nurse_id, 0), coalesce(doctor_id, 0)) makes concurrent calls
// converge on a single row.
func (db *PgCareRepository) GetOrCreateRoom(params GetOrCreateRoomParams) (Room, bool, error) {
	row := db.conn.QueryRow(
		"INSERT INTO rooms (external_id, variant, patient_id, nurse_id, doctor_id, status, last_activity_at, created_at) "+
			"VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, 0), $6, $7, $7) "+
			"ON CONFLICT (variant, patient_id, COALESCE(nurse_id, 0), COALESCE(doctor_id, 0)) DO NOTHING "+
			"RETURNING "+roomColumns,
		params.ExternalId,
		params.Variant,
		params.PatientId,
		params.NurseId,
		params.DoctorId,
		types.RoomStatusActive,
		time.Now().UTC(),
	)

	room, err := scanRoom(row)
	if err == nil {
		return room, true, nil
	}
	if err != sql.ErrNoRows {
		return Room{}, false, err
	}

	// Conflict: the room already exists, fetch it.
	room, err = scanRoom(db.conn.QueryRow(
		"SELECT "+roomColumns+" FROM rooms "+
			"WHERE variant = $1 AND patient_id = $2 AND COALESCE(nurse_id, 0) = $3 AND COALESCE(doctor_id, 0) = $4 LIMIT 1",
		params.Variant,
		params.PatientId,
		params.NurseId,
		params.DoctorId,
	))

	return room, false, err
}

func (db *PgCareRepository) GetRoomByExternalId(externalId string) (Room, error) {
	room, err := scanRoom(db.conn.QueryRow(
		"SELECT "+roomColumns+" FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	))
	if err == sql.ErrNoRows {
		return Room{}, ErrRoomNotFound
	}

	return room, err
}

func (db *PgCareRepository) ListRoomsForProfile(role types.Role, profileId int) ([]Room, error) {
	var clause string
	switch role {
	case types.RolePatient:
		clause = "patient_id = $1"
	case types.RoleNurse:
		clause = "nurse_id = $1"
	case types.RoleDoctor:
		clause = "doctor_id = $1"
	default:
		return nil, fmt.Errorf("role %q cannot hold rooms", role)
	}

	rows, err := db.conn.Query(
		"SELECT "+roomColumns+" FROM rooms WHERE "+clause+" ORDER BY last_activity_at DESC",
		profileId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(
			&r.Id,
			&r.ExternalId,
			&r.Variant,
			&r.PatientId,
			&r.NurseId,
			&r.DoctorId,
			&r.Status,
			&r.LastActivityAt,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

// CreateMessage re-validates the sender's participant slot inside the
// transaction so an authorization check is never trusted across a suspend
// point, then persists the message and bumps the room's last activity.
func (db *PgCareRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback()

	var room Room
	err = tx.QueryRow(
		"SELECT id, patient_id, COALESCE(nurse_id, 0), COALESCE(doctor_id, 0) FROM rooms WHERE id = $1 LIMIT 1",
		params.RoomId,
	).Scan(&room.Id, &room.PatientId, &room.NurseId, &room.DoctorId)
	if err == sql.ErrNoRows {
		return Message{}, ErrRoomNotFound
	}
	if err != nil {
		return Message{}, err
	}

	table, ok := profileTable(params.SenderRole)
	if !ok {
		return Message{}, ErrNotAuthorized
	}

	var profileId int
	err = tx.QueryRow(
		fmt.Sprintf("SELECT id FROM %s WHERE account_id = $1 LIMIT 1", table),
		params.SenderId,
	).Scan(&profileId)
	if err == sql.ErrNoRows {
		return Message{}, ErrNotAuthorized
	}
	if err != nil {
		return Message{}, err
	}

	var slot int
	switch params.SenderRole {
	case types.RolePatient:
		slot = room.PatientId
	case types.RoleNurse:
		slot = room.NurseId
	case types.RoleDoctor:
		slot = room.DoctorId
	}
	if slot == 0 || slot != profileId {
		return Message{}, ErrNotAuthorized
	}

	now := time.Now().UTC()
	var msg Message
	err = tx.QueryRow(
		"INSERT INTO messages (room_id, sender_id, sender_role, content, is_read, created_at) "+
			"VALUES ($1, $2, $3, $4, FALSE, $5) "+
			"RETURNING id, room_id, sender_id, sender_role, content, is_read, read_at, created_at",
		params.RoomId,
		params.SenderId,
		params.SenderRole,
		params.Content,
		now,
	).Scan(&msg.Id, &msg.RoomId, &msg.SenderId, &msg.SenderRole, &msg.Content, &msg.IsRead, &msg.ReadAt, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}

	if _, err := tx.Exec(
		"UPDATE rooms SET last_activity_at = $2 WHERE id = $1",
		params.RoomId,
		now,
	); err != nil {
		return Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

const messageColumns = "id, room_id, sender_id, sender_role, content, is_read, read_at, created_at"

func (db *PgCareRepository) queryMessages(query string, args ...any) ([]Message, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.RoomId,
			&m.SenderId,
			&m.SenderRole,
			&m.Content,
			&m.IsRead,
			&m.ReadAt,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgCareRepository) GetRoomMessages(roomId int) ([]Message, error) {
	return db.queryMessages(
		"SELECT "+messageColumns+" FROM messages WHERE room_id = $1 ORDER BY created_at ASC, id ASC",
		roomId,
	)
}

func (db *PgCareRepository) GetLatestMessages(roomId, limit int) ([]Message, error) {
	return db.queryMessages(
		"SELECT "+messageColumns+" FROM messages WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		roomId,
		limit,
	)
}

func (db *PgCareRepository) MarkMessagesRead(roomId, readerId int, readAt time.Time) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET is_read = TRUE, read_at = $3 "+
			"WHERE room_id = $1 AND sender_id <> $2 AND is_read = FALSE",
		roomId,
		readerId,
		readAt.UTC(),
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgCareRepository) CreateAppointment(params CreateAppointmentParams) (Appointment, error) {
	var a Appointment
	err := db.conn.QueryRow(
		"INSERT INTO appointments (patient_id, doctor_id, scheduled_at, status, notes, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, patient_id, doctor_id, scheduled_at, status, notes, created_at, updated_at",
		params.PatientId,
		params.DoctorId,
		params.ScheduledAt.UTC(),
		types.AppointmentRequested,
		params.Notes,
		time.Now().UTC(),
	).Scan(&a.Id, &a.PatientId, &a.DoctorId, &a.ScheduledAt, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)

	return a, err
}

func (db *PgCareRepository) GetAppointmentById(id int) (Appointment, error) {
	var a Appointment
	err := db.conn.QueryRow(
		"SELECT id, patient_id, doctor_id, scheduled_at, status, notes, created_at, updated_at "+
			"FROM appointments WHERE id = $1 LIMIT 1",
		id,
	).Scan(&a.Id, &a.PatientId, &a.DoctorId, &a.ScheduledAt, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)

	return a, err
}

func (db *PgCareRepository) UpdateAppointmentStatus(id int, status string) (Appointment, error) {
	var a Appointment
	err := db.conn.QueryRow(
		"UPDATE appointments SET status = $2, updated_at = $3 WHERE id = $1 "+
			"RETURNING id, patient_id, doctor_id, scheduled_at, status, notes, created_at, updated_at",
		id,
		status,
		time.Now().UTC(),
	).Scan(&a.Id, &a.PatientId, &a.DoctorId, &a.ScheduledAt, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)

	return a, err
}

func (db *PgCareRepository) ListAppointmentsForProfile(role types.Role, profileId int) ([]Appointment, error) {
	var clause string
	switch role {
	case types.RolePatient:
		clause = "patient_id = $1"
	case types.RoleDoctor:
		clause = "doctor_id = $1"
	default:
		return nil, fmt.Errorf("role %q has no appointments", role)
	}

	rows, err := db.conn.Query(
		"SELECT id, patient_id, doctor_id, scheduled_at, status, notes, created_at, updated_at "+
			"FROM appointments WHERE "+clause+" ORDER BY scheduled_at ASC",
		profileId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.Id, &a.PatientId, &a.DoctorId, &a.ScheduledAt, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}

	return appointments, rows.Err()
}

func (db *PgCareRepository) CreatePrescription(params CreatePrescriptionParams) (Prescription, error) {
	var p Prescription
	err := db.conn.QueryRow(
		"INSERT INTO prescriptions (patient_id, doctor_id, medication, dosage, instructions, status, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"RETURNING id, patient_id, doctor_id, medication, dosage, instructions, status, created_at",
		params.PatientId,
		params.DoctorId,
		params.Medication,
		params.Dosage,
		params.Instructions,
		types.PrescriptionIssued,
		time.Now().UTC(),
	).Scan(&p.Id, &p.PatientId, &p.DoctorId, &p.Medication, &p.Dosage, &p.Instructions, &p.Status, &p.CreatedAt)

	return p, err
}

func (db *PgCareRepository) ListPrescriptionsForProfile(role types.Role, profileId int) ([]Prescription, error) {
	var clause string
	switch role {
	case types.RolePatient:
		clause = "patient_id = $1"
	case types.RoleDoctor:
		clause = "doctor_id = $1"
	default:
		return nil, fmt.Errorf("role %q has no prescriptions", role)
	}

	rows, err := db.conn.Query(
		"SELECT id, patient_id, doctor_id, medication, dosage, instructions, status, created_at "+
			"FROM prescriptions WHERE "+clause+" ORDER BY created_at DESC",
		profileId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prescriptions []Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.Id, &p.PatientId, &p.DoctorId, &p.Medication, &p.Dosage, &p.Instructions, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		prescriptions = append(prescriptions, p)
	}

	return prescriptions, rows.Err()
}
