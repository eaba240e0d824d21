package realtime

import (
	"net/http"
	"time"

	"github.com/chatconnect/chatconnect/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a command from the browser.
type ClientMessage struct {
	BaseMessage
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
	Publish     *Publish     `json:"publish,omitempty"`
}

type Subscribe struct {
	RoomId string `json:"room_id"`
}

type Unsubscribe struct {
	RoomId string `json:"room_id"`
}

type Publish struct {
	RoomId string `json:"room_id"`
	Text   string `json:"text"`
}

// ServerMessage is a frame pushed to the browser: a command response,
// a live room snapshot, or a live message batch.
type ServerMessage struct {
	BaseMessage
	Response *Response     `json:"response,omitempty"`
	Rooms    *RoomSnapshot `json:"rooms,omitempty"`
	Messages *MessageBatch `json:"messages,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

// RoomSnapshot is the full set of rooms containing the user, with the
// derived current invite code and pairing phase.
type RoomSnapshot struct {
	Rooms      []types.Room `json:"rooms"`
	InviteCode string       `json:"invite_code,omitempty"`
	Phase      string       `json:"phase"`
}

type MessageBatch struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

func Now() time.Time {
	return time.Now().UTC()
}

func NoErrOK(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		Response:    &Response{ResponseCode: http.StatusOK},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		Response:    &Response{ResponseCode: http.StatusAccepted},
	}
}

func ErrBadRequest(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "bad request",
		},
	}
}

func ErrForbidden(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "not a member of this room",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal error",
		},
	}
}
