package types

import "time"

type Room struct {
	Code        string            `json:"code"`
	Users       []string          `json:"users"`
	UserDetails map[string]string `json:"user_details"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Solo reports whether the room has exactly one occupant and is
// therefore still waiting for a second user.
func (r Room) Solo() bool {
	return len(r.Users) == 1
}

// HasUser reports whether userId is an occupant of the room.
func (r Room) HasUser(userId string) bool {
	for _, u := range r.Users {
		if u == userId {
			return true
		}
	}
	return false
}

// OtherUser returns the first occupant other than userId, or "" when
// there is none.
func (r Room) OtherUser(userId string) string {
	for _, u := range r.Users {
		if u != userId {
			return u
		}
	}
	return ""
}

type UserProfile struct {
	UserId    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id             string    `json:"id"`
	RoomId         string    `json:"room_id"`
	SenderId       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

type FriendRequest struct {
	SenderId       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

type Friend struct {
	UserId   string    `json:"user_id"`
	Username string    `json:"username"`
	AddedAt  time.Time `json:"added_at,omitempty"`
}
