package server

import (
	"time"

	"github.com/carebridge/carebridge/internal/types"
)

// Inbound frame types.
const (
	TypeJoinRoom    = "join-room"
	TypeSendMessage = "send-message"
	TypeTyping      = "typing"
	TypeMarkRead    = "mark-read"
)

// Outbound frame types.
const (
	TypeConnected    = "connected"
	TypeRoomJoined   = "room-joined"
	TypeRoomHistory  = "room-history"
	TypeNewMessage   = "new-message"
	TypeUserTyping   = "user-typing"
	TypeMessagesRead = "messages-read"
	TypeNotification = "notification"
	TypeError        = "error"
)

// ClientFrame is a single inbound JSON frame. The Type field discriminates
// which of the remaining fields are meaningful.
type ClientFrame struct {
	Type    string  `json:"type"`
	RoomId  string  `json:"roomId,omitempty"`
	Content string  `json:"content,omitempty"`
	client  *Client `json:"-"`
}

// ServerFrame is a single outbound JSON frame. Message carries a
// *types.Message for new-message frames and a string for error frames.
type ServerFrame struct {
	Type       string          `json:"type"`
	UserId     int             `json:"userId,omitempty"`
	RoomId     string          `json:"roomId,omitempty"`
	Message    any             `json:"message,omitempty"`
	Messages   []types.Message `json:"messages,omitempty"`
	Event      string          `json:"event,omitempty"`
	Data       any             `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	SkipClient *Client         `json:"-"`
}

func ConnectedFrame(userId int) *ServerFrame {
	return &ServerFrame{
		Type:      TypeConnected,
		UserId:    userId,
		Timestamp: Now(),
	}
}

func RoomJoinedFrame(roomId string) *ServerFrame {
	return &ServerFrame{
		Type:      TypeRoomJoined,
		RoomId:    roomId,
		Timestamp: Now(),
	}
}

func RoomHistoryFrame(roomId string, messages []types.Message) *ServerFrame {
	return &ServerFrame{
		Type:      TypeRoomHistory,
		RoomId:    roomId,
		Messages:  messages,
		Timestamp: Now(),
	}
}

func NewMessageFrame(roomId string, msg *types.Message) *ServerFrame {
	return &ServerFrame{
		Type:      TypeNewMessage,
		RoomId:    roomId,
		Message:   msg,
		Timestamp: Now(),
	}
}

func UserTypingFrame(userId int, roomId string) *ServerFrame {
	return &ServerFrame{
		Type:      TypeUserTyping,
		UserId:    userId,
		RoomId:    roomId,
		Timestamp: Now(),
	}
}

func MessagesReadFrame(userId int, roomId string) *ServerFrame {
	return &ServerFrame{
		Type:      TypeMessagesRead,
		UserId:    userId,
		RoomId:    roomId,
		Timestamp: Now(),
	}
}

func NotificationFrame(event string, data any) *ServerFrame {
	return &ServerFrame{
		Type:      TypeNotification,
		Event:     event,
		Data:      data,
		Timestamp: Now(),
	}
}

func ErrorFrame(reason string) *ServerFrame {
	return &ServerFrame{
		Type:      TypeError,
		Message:   reason,
		Timestamp: Now(),
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
