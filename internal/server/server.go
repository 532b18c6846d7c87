package server

import (
	"context"
	"errors"
	"log"

	"github.com/carebridge/carebridge/internal/database"
	"github.com/carebridge/carebridge/internal/stats"
)

type ChatServer struct {
	log            *log.Logger
	db             database.CareRepository
	registry       *ConnectionRegistry
	stats          stats.StatsProvider
	joinChan       chan *ClientFrame
	broadcastChan  chan *roomBroadcast
	unloadRoomChan chan string
	rooms          map[string]*Room
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.CareRepository, sp stats.StatsProvider) (*ChatServer, error) {
	if db == nil {
		return nil, errors.New("nil repository")
	}

	for _, metric := range []string{
		stats.ActiveConnections,
		stats.ActiveRooms,
		stats.MessagesSent,
		stats.NotificationsSent,
	} {
		sp.RegisterMetric(metric)
	}

	return &ChatServer{
		log:            logger,
		db:             db,
		registry:       NewConnectionRegistry(),
		stats:          sp,
		joinChan:       make(chan *ClientFrame, 256),
		broadcastChan:  make(chan *roomBroadcast, 256),
		unloadRoomChan: make(chan string, 256),
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case join := <-cs.joinChan:
			cs.handleJoin(join)
		case b := <-cs.broadcastChan:
			if room, ok := cs.rooms[b.roomId]; ok {
				room.broadcast(b.frame)
			}
		case id := <-cs.unloadRoomChan:
			cs.unloadRoom(id)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				close(r.exit)
				<-r.done
			}
			cs.rooms = make(map[string]*Room)

			close(cs.done)
			return
		}
	}
}

// handleJoin routes a join-room frame to the live room, loading it from
// persistence on first use. Authorization happens inside the room.
func (cs *ChatServer) handleJoin(join *ClientFrame) {
	if room, ok := cs.rooms[join.RoomId]; ok {
		select {
		case room.joinChan <- join:
		default:
			cs.log.Printf("join channel full on room %q", room.externalId)
			join.client.queueFrame(ErrorFrame("service unavailable"))
		}
		return
	}

	dbRoom, err := cs.db.GetRoomByExternalId(join.RoomId)
	if err != nil {
		if !errors.Is(err, database.ErrRoomNotFound) {
			cs.log.Println("GetRoomByExternalId:", err)
		}
		join.client.queueFrame(ErrorFrame("room not found"))
		return
	}

	room := newRoom(dbRoom, cs)
	cs.rooms[room.externalId] = room
	cs.stats.Incr(stats.ActiveRooms)

	room.joinChan <- join
	go room.start()
}

func (cs *ChatServer) unloadRoom(id string) {
	r, ok := cs.rooms[id]
	if !ok {
		return
	}

	cs.log.Printf("unloading room %q", id)
	delete(cs.rooms, id)
	close(r.exit)
	<-r.done
	cs.stats.Decr(stats.ActiveRooms)
}

type roomBroadcast struct {
	roomId string
	frame  *ServerFrame
}

// BroadcastToRoom fans an event out to the room's currently joined clients.
// Rooms with no live clients are not loaded, so the broadcast quietly
// reaches nobody; offline members catch up from history.
func (cs *ChatServer) BroadcastToRoom(roomId string, frame *ServerFrame) {
	select {
	case cs.broadcastChan <- &roomBroadcast{roomId: roomId, frame: frame}:
	default:
		cs.log.Printf("broadcast channel full, dropping frame for room %q", roomId)
	}
}

// RegisterClient installs c as the single live connection for its user.
// A previous connection from the same user is closed: replacing without
// closing would orphan the old socket.
func (cs *ChatServer) RegisterClient(c *Client) {
	if old := cs.registry.Register(c.user.Id, c); old != nil {
		cs.log.Printf("replacing connection for user %d", c.user.Id)
		old.stopClient()
	} else {
		cs.stats.Incr(stats.ActiveConnections)
	}

	c.queueFrame(ConnectedFrame(c.user.Id))
}

// DeregisterClient removes c from the registry unless a newer connection
// for the same user has already replaced it.
func (cs *ChatServer) DeregisterClient(c *Client) {
	if cs.registry.Unregister(c.user.Id, c) {
		cs.stats.Decr(stats.ActiveConnections)
	}
}

func (cs *ChatServer) Registry() *ConnectionRegistry {
	return cs.registry
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	cs.registry.Each(func(c *Client) {
		c.stopClient()
	})

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
