package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/carebridge/carebridge/internal/database"
	"github.com/carebridge/carebridge/internal/server"
	"github.com/carebridge/carebridge/internal/types"
)

type RegisterRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     types.Role `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateRoomRequest struct {
	Variant   types.RoomVariant `json:"variant,omitempty"`
	PatientId int               `json:"patient_id,omitempty"`
	NurseId   int               `json:"nurse_id,omitempty"`
	DoctorId  int               `json:"doctor_id,omitempty"`
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type CreateAppointmentRequest struct {
	DoctorId    int       `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	Status string `json:"status"`
}

type CreatePrescriptionRequest struct {
	PatientId    int    `json:"patient_id"`
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions,omitempty"`
}

func (s *CareBridgeApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// requireAccount loads the authenticated caller, including the
// role-specific profile id every room decision is made against.
func (s *CareBridgeApp) requireAccount(r *http.Request) (database.User, *ApiError) {
	userId, ok := UserId(r.Context())
	if !ok {
		return database.User{}, NewUnauthorizedError()
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, NewUnauthorizedError()
		}
		return database.User{}, NewInternalServerError(err)
	}

	return user, nil
}

// roomParticipant mirrors the chat core's membership rule: the caller's
// role-tagged profile id must occupy the slot for that role.
func roomParticipant(room database.Room, role types.Role, profileId int) bool {
	if profileId == 0 {
		return false
	}

	switch role {
	case types.RolePatient:
		return room.PatientId == profileId
	case types.RoleNurse:
		return room.NurseId == profileId
	case types.RoleDoctor:
		return room.DoctorId == profileId
	}

	return false
}

func toApiUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Name:         u.Name,
		EmailAddress: u.EmailAddress,
		Role:         u.Role,
		ProfileId:    u.ProfileId,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func toApiRoom(r database.Room) types.Room {
	return types.Room{
		Id:             r.Id,
		ExternalId:     r.ExternalId,
		Variant:        r.Variant,
		PatientId:      r.PatientId,
		NurseId:        r.NurseId,
		DoctorId:       r.DoctorId,
		Status:         r.Status,
		LastActivityAt: r.LastActivityAt,
		CreatedAt:      r.CreatedAt,
	}
}

func toApiMessage(externalRoomId string, m database.Message) types.Message {
	return types.Message{
		Id:         m.Id,
		RoomId:     externalRoomId,
		SenderId:   m.SenderId,
		SenderRole: m.SenderRole,
		Content:    m.Content,
		IsRead:     m.IsRead,
		ReadAt:     m.ReadAt,
		Timestamp:  m.CreatedAt,
	}
}

func toApiAppointment(a database.Appointment) types.Appointment {
	return types.Appointment{
		Id:          a.Id,
		PatientId:   a.PatientId,
		DoctorId:    a.DoctorId,
		ScheduledAt: a.ScheduledAt,
		Status:      a.Status,
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toApiPrescription(p database.Prescription) types.Prescription {
	return types.Prescription{
		Id:           p.Id,
		PatientId:    p.PatientId,
		DoctorId:     p.DoctorId,
		Medication:   p.Medication,
		Dosage:       p.Dosage,
		Instructions: p.Instructions,
		Status:       p.Status,
		CreatedAt:    p.CreatedAt,
	}
}

func (s *CareBridgeApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *CareBridgeApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" || !req.Role.Valid() {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		Name:         req.Name,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
		Role:         req.Role,
	})
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrDuplicateEmail) {
			errResp = NewConflictError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toApiUser(newUser))
}

func (s *CareBridgeApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := toApiUser(dbUser)
	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *CareBridgeApp) session(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	s.writeJson(w, http.StatusOK, toApiUser(user))
}

func (s *CareBridgeApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

// createRoom is get-or-create: at most one room exists per participant
// tuple, so posting the same counterparts twice returns the existing room.
func (s *CareBridgeApp) createRoom(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if !user.Role.HasChatProfile() {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// The caller always occupies its own slot; a spoofed id in the body
	// for the caller's role is ignored.
	switch user.Role {
	case types.RolePatient:
		req.PatientId = user.ProfileId
	case types.RoleNurse:
		req.NurseId = user.ProfileId
	case types.RoleDoctor:
		req.DoctorId = user.ProfileId
	}

	variant := req.Variant
	if variant == "" {
		switch {
		case req.NurseId > 0 && req.DoctorId > 0:
			variant = types.VariantCareTeam
		case req.NurseId > 0:
			variant = types.VariantPatientNurse
		case req.DoctorId > 0:
			variant = types.VariantPatientDoctor
		}
	}

	if !validRoomRequest(variant, user.Role, req) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, created, err := s.db.GetOrCreateRoom(database.GetOrCreateRoomParams{
		Variant:    variant,
		ExternalId: sid,
		PatientId:  req.PatientId,
		NurseId:    req.NurseId,
		DoctorId:   req.DoctorId,
	})
	if err != nil {
		s.log.Println("GetOrCreateRoom:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	s.writeJson(w, status, toApiRoom(room))
}

func validRoomRequest(variant types.RoomVariant, callerRole types.Role, req CreateRoomRequest) bool {
	if req.PatientId <= 0 {
		return false
	}

	callerHasSlot := false
	for _, role := range variant.Slots() {
		if role == callerRole {
			callerHasSlot = true
		}
	}
	if !callerHasSlot {
		return false
	}

	switch variant {
	case types.VariantPatientNurse:
		return req.NurseId > 0 && req.DoctorId == 0
	case types.VariantPatientDoctor:
		return req.DoctorId > 0 && req.NurseId == 0
	case types.VariantCareTeam:
		return req.NurseId > 0 && req.DoctorId > 0
	}

	return false
}

// getRooms lists the caller's rooms ordered by most recent activity, each
// with a newest-message preview.
func (s *CareBridgeApp) getRooms(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if !user.Role.HasChatProfile() {
		s.writeJson(w, http.StatusOK, []types.Room{})
		return
	}

	dbRooms, err := s.db.ListRoomsForProfile(user.Role, user.ProfileId)
	if err != nil {
		s.log.Println("ListRoomsForProfile:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, dbRoom := range dbRooms {
		room := toApiRoom(dbRoom)

		latest, err := s.db.GetLatestMessages(dbRoom.Id, 1)
		if err != nil {
			s.log.Println("GetLatestMessages:", err)
		} else if len(latest) > 0 {
			msg := toApiMessage(dbRoom.ExternalId, latest[0])
			room.LastMessage = &msg
		}

		rooms = append(rooms, room)
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *CareBridgeApp) loadRoomForParticipant(w http.ResponseWriter, r *http.Request) (database.Room, database.User, bool) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return database.Room{}, database.User{}, false
	}

	room, err := s.db.GetRoomByExternalId(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Room{}, database.User{}, false
	}

	if !roomParticipant(room, user.Role, user.ProfileId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Room{}, database.User{}, false
	}

	return room, user, true
}

// getRoomMessages returns the room's full history, oldest first.
func (s *CareBridgeApp) getRoomMessages(w http.ResponseWriter, r *http.Request) {
	room, _, ok := s.loadRoomForParticipant(w, r)
	if !ok {
		return
	}

	dbMessages, err := s.db.GetRoomMessages(room.Id)
	if err != nil {
		s.log.Println("GetRoomMessages:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, m := range dbMessages {
		messages = append(messages, toApiMessage(room.ExternalId, m))
	}

	s.writeJson(w, http.StatusOK, messages)
}

// postRoomMessage mirrors the websocket send-message operation for clients
// without a persistent socket. The message is persisted, then broadcast
// best-effort to the room's live members.
func (s *CareBridgeApp) postRoomMessage(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.CreateMessage(database.CreateMessageParams{
		RoomId:     room.Id,
		SenderId:   user.Id,
		SenderRole: user.Role,
		Content:    req.Content,
	})
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, database.ErrNotAuthorized):
			errResp = NewForbiddenError()
		case errors.Is(err, database.ErrRoomNotFound):
			errResp = NewNotFoundError()
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	apiMsg := toApiMessage(room.ExternalId, msg)
	s.broadcast(room.ExternalId, server.NewMessageFrame(room.ExternalId, &apiMsg))

	s.writeJson(w, http.StatusCreated, apiMsg)
}

func (s *CareBridgeApp) markRoomRead(w http.ResponseWriter, r *http.Request) {
	room, user, ok := s.loadRoomForParticipant(w, r)
	if !ok {
		return
	}

	updated, err := s.db.MarkMessagesRead(room.Id, user.Id, time.Now().UTC())
	if err != nil {
		s.log.Println("MarkMessagesRead:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if updated > 0 {
		s.broadcast(room.ExternalId, server.MessagesReadFrame(user.Id, room.ExternalId))
	}

	s.writeJson(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (s *CareBridgeApp) createAppointment(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if user.Role != types.RolePatient {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.DoctorId <= 0 || req.ScheduledAt.IsZero() {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	appt, err := s.db.CreateAppointment(database.CreateAppointmentParams{
		PatientId:   user.ProfileId,
		DoctorId:    req.DoctorId,
		ScheduledAt: req.ScheduledAt,
		Notes:       req.Notes,
	})
	if err != nil {
		s.log.Println("CreateAppointment:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if doctorAccountId, err := s.db.AccountIdForProfile(types.RoleDoctor, appt.DoctorId); err != nil {
		s.log.Println("AccountIdForProfile:", err)
	} else {
		s.notify(doctorAccountId, server.EventAppointmentRequested, toApiAppointment(appt))
	}

	s.writeJson(w, http.StatusCreated, toApiAppointment(appt))
}

func (s *CareBridgeApp) getAppointments(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if user.Role != types.RolePatient && user.Role != types.RoleDoctor {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbAppointments, err := s.db.ListAppointmentsForProfile(user.Role, user.ProfileId)
	if err != nil {
		s.log.Println("ListAppointmentsForProfile:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	appointments := make([]types.Appointment, 0, len(dbAppointments))
	for _, a := range dbAppointments {
		appointments = append(appointments, toApiAppointment(a))
	}

	s.writeJson(w, http.StatusOK, appointments)
}

// updateAppointment transitions an appointment's status: doctors accept or
// decline requests addressed to them, patients cancel their own. The other
// party is notified best-effort.
func (s *CareBridgeApp) updateAppointment(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	appt, err := s.db.GetAppointmentById(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	allowed := false
	var counterpartRole types.Role
	var counterpartId int
	switch user.Role {
	case types.RoleDoctor:
		allowed = appt.DoctorId == user.ProfileId &&
			appt.Status == types.AppointmentRequested &&
			(req.Status == types.AppointmentAccepted || req.Status == types.AppointmentDeclined)
		counterpartRole, counterpartId = types.RolePatient, appt.PatientId
	case types.RolePatient:
		allowed = appt.PatientId == user.ProfileId &&
			(appt.Status == types.AppointmentRequested || appt.Status == types.AppointmentAccepted) &&
			req.Status == types.AppointmentCancelled
		counterpartRole, counterpartId = types.RoleDoctor, appt.DoctorId
	}

	if !allowed {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.UpdateAppointmentStatus(id, req.Status)
	if err != nil {
		s.log.Println("UpdateAppointmentStatus:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if accountId, err := s.db.AccountIdForProfile(counterpartRole, counterpartId); err != nil {
		s.log.Println("AccountIdForProfile:", err)
	} else {
		s.notify(accountId, server.EventAppointmentUpdated, toApiAppointment(updated))
	}

	s.writeJson(w, http.StatusOK, toApiAppointment(updated))
}

func (s *CareBridgeApp) createPrescription(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if user.Role != types.RoleDoctor {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.PatientId <= 0 || req.Medication == "" || req.Dosage == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	prescription, err := s.db.CreatePrescription(database.CreatePrescriptionParams{
		PatientId:    req.PatientId,
		DoctorId:     user.ProfileId,
		Medication:   req.Medication,
		Dosage:       req.Dosage,
		Instructions: req.Instructions,
	})
	if err != nil {
		s.log.Println("CreatePrescription:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if patientAccountId, err := s.db.AccountIdForProfile(types.RolePatient, prescription.PatientId); err != nil {
		s.log.Println("AccountIdForProfile:", err)
	} else {
		s.notify(patientAccountId, server.EventNewPrescription, toApiPrescription(prescription))
	}

	s.writeJson(w, http.StatusCreated, toApiPrescription(prescription))
}

func (s *CareBridgeApp) getPrescriptions(w http.ResponseWriter, r *http.Request) {
	user, apiErr := s.requireAccount(r)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if user.Role != types.RolePatient && user.Role != types.RoleDoctor {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbPrescriptions, err := s.db.ListPrescriptionsForProfile(user.Role, user.ProfileId)
	if err != nil {
		s.log.Println("ListPrescriptionsForProfile:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	prescriptions := make([]types.Prescription, 0, len(dbPrescriptions))
	for _, p := range dbPrescriptions {
		prescriptions = append(prescriptions, toApiPrescription(p))
	}

	s.writeJson(w, http.StatusOK, prescriptions)
}
