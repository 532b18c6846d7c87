package server

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/carebridge/carebridge/internal/database"
	"github.com/carebridge/carebridge/internal/stats"
	"github.com/carebridge/carebridge/internal/types"
)

const idleRoomTimeout = time.Minute

// Room is the live counterpart of a persisted conversation. It owns the
// in-memory membership for broadcasts, which is rebuilt from join-room
// frames and intentionally not persisted: after a restart clients rejoin
// and re-fetch history, persistence stays the source of truth.
type Room struct {
	id         int
	externalId string
	variant    types.RoomVariant
	patientId  int
	nurseId    int
	doctorId   int
	cs         *ChatServer
	joinChan   chan *ClientFrame
	leaveChan  chan *Client
	frameChan  chan *ClientFrame
	clients    map[*Client]struct{}
	// members maps account id to its joined client, the registry-facing
	// view of this room's membership.
	members    map[int]*Client
	clientLock sync.RWMutex
	log        *log.Logger
	// killTimer unloads the room once the last client leaves.
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newRoom(dbRoom database.Room, cs *ChatServer) *Room {
	return &Room{
		id:         dbRoom.Id,
		externalId: dbRoom.ExternalId,
		variant:    dbRoom.Variant,
		patientId:  dbRoom.PatientId,
		nurseId:    dbRoom.NurseId,
		doctorId:   dbRoom.DoctorId,
		cs:         cs,
		joinChan:   make(chan *ClientFrame, 256),
		leaveChan:  make(chan *Client, 256),
		frameChan:  make(chan *ClientFrame, 256),
		clients:    make(map[*Client]struct{}),
		members:    make(map[int]*Client),
		log:        cs.log,
		exit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// isParticipant decides room access by comparing the caller's role-tagged
// profile id against the slot for that role only. Comparing across id
// spaces (account id against a profile slot, or one role's profile id
// against another's slot) is never done.
func (r *Room) isParticipant(role types.Role, profileId int) bool {
	if profileId == 0 {
		return false
	}

	switch role {
	case types.RolePatient:
		return r.patientId == profileId
	case types.RoleNurse:
		return r.nurseId == profileId
	case types.RoleDoctor:
		return r.doctorId == profileId
	}

	return false
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case client := <-r.leaveChan:
			r.handleLeave(client)
		case frame := <-r.frameChan:
			r.handleFrame(frame)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case <-r.exit:
			r.handleRoomExit()
			return
		}
	}
}

func (r *Room) handleFrame(frame *ClientFrame) {
	switch frame.Type {
	case TypeSendMessage:
		r.saveAndBroadcast(frame)
	case TypeTyping:
		r.handleTyping(frame)
	case TypeMarkRead:
		r.handleRead(frame)
	}
}

func (r *Room) handleJoin(join *ClientFrame) {
	r.killTimer.Stop()
	c := join.client

	if !r.isParticipant(c.user.Role, c.user.ProfileId) {
		r.log.Printf("user %d (%s) denied access to room %q", c.user.Id, c.user.Role, r.externalId)
		c.queueFrame(ErrorFrame("not authorized to join this room"))
		r.resetTimerIfEmpty()
		return
	}

	r.addClient(c)
	c.queueFrame(RoomJoinedFrame(r.externalId))

	history, err := r.cs.db.GetRoomMessages(r.id)
	if err != nil {
		r.log.Println("GetRoomMessages:", err)
		c.queueFrame(ErrorFrame("failed to load room history"))
		return
	}

	messages := make([]types.Message, len(history))
	for i, m := range history {
		messages[i] = r.toApiMessage(m)
	}

	c.queueFrame(RoomHistoryFrame(r.externalId, messages))
}

// saveAndBroadcast persists the message, then fans it out to every joined
// client. Delivery is best effort: members without a live, joined
// connection catch up from history later.
func (r *Room) saveAndBroadcast(frame *ClientFrame) {
	c := frame.client
	if frame.Content == "" {
		c.queueFrame(ErrorFrame("invalid message format"))
		return
	}

	msg, err := r.cs.db.CreateMessage(database.CreateMessageParams{
		RoomId:     r.id,
		SenderId:   c.user.Id,
		SenderRole: c.user.Role,
		Content:    frame.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotAuthorized):
			c.queueFrame(ErrorFrame("not authorized to post in this room"))
		case errors.Is(err, database.ErrRoomNotFound):
			c.queueFrame(ErrorFrame("room not found"))
		default:
			r.log.Println("CreateMessage:", err)
			c.queueFrame(ErrorFrame("failed to send message"))
		}
		return
	}

	r.cs.stats.Incr(stats.MessagesSent)

	apiMsg := r.toApiMessage(msg)
	r.broadcast(NewMessageFrame(r.externalId, &apiMsg))
}

func (r *Room) handleTyping(frame *ClientFrame) {
	// Ephemeral, never persisted. The sender is excluded.
	typing := UserTypingFrame(frame.client.user.Id, r.externalId)
	typing.SkipClient = frame.client
	r.broadcast(typing)
}

func (r *Room) handleRead(frame *ClientFrame) {
	c := frame.client
	n, err := r.cs.db.MarkMessagesRead(r.id, c.user.Id, Now())
	if err != nil {
		r.log.Println("MarkMessagesRead:", err)
		c.queueFrame(ErrorFrame("failed to mark messages read"))
		return
	}

	if n == 0 {
		return
	}

	read := MessagesReadFrame(c.user.Id, r.externalId)
	read.SkipClient = c
	r.broadcast(read)
}

func (r *Room) handleLeave(c *Client) {
	r.removeClient(c)
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q idle, unloading", r.externalId)
	select {
	case r.cs.unloadRoomChan <- r.externalId:
	default:
		// Server busy, try again on the next timeout.
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit() {
	r.log.Printf("room %q is exiting", r.externalId)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clientLock.Unlock()

	close(r.done)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	r.members[c.user.Id] = c
	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	if r.members[c.user.Id] == c {
		delete(r.members, c.user.Id)
	}
	c.delRoom(r.externalId)

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) resetTimerIfEmpty() {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// isMember reports whether an account currently has a joined client.
func (r *Room) isMember(userId int) bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return r.members[userId] != nil
}

// broadcast queues frame on every joined client except frame.SkipClient.
// Clients whose send buffer rejects the frame are skipped silently.
func (r *Room) broadcast(frame *ServerFrame) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == frame.SkipClient {
			continue
		}

		client.queueFrame(frame)
	}
}

func (r *Room) toApiMessage(m database.Message) types.Message {
	return types.Message{
		Id:         m.Id,
		RoomId:     r.externalId,
		SenderId:   m.SenderId,
		SenderRole: m.SenderRole,
		Content:    m.Content,
		IsRead:     m.IsRead,
		ReadAt:     m.ReadAt,
		Timestamp:  m.CreatedAt,
	}
}
