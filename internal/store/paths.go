package store

// Paths builds the app-namespaced collection layout. All collections
// live under artifacts/{appId}.
type Paths struct {
	root string
}

func NewPaths(appId string) Paths {
	return Paths{root: "artifacts/" + appId}
}

// Rooms is the collection of Room documents, keyed by invite code.
func (p Paths) Rooms() string {
	return p.root + "/public/data/rooms"
}

// RoomCodes is the provenance mapping collection, keyed by invite
// code. Audit trail only, never consulted by the join path.
func (p Paths) RoomCodes() string {
	return p.root + "/public/data/roomCodes"
}

// Profile is the private profile document for a user.
func (p Paths) Profile(userId string) (collection, key string) {
	return p.root + "/users/" + userId + "/profile", "userProfile"
}

// PublicProfiles is the queryable public profile collection, keyed by
// user id.
func (p Paths) PublicProfiles() string {
	return p.root + "/public/data/userProfiles"
}

// Messages is the message collection for a room, keyed by message id.
func (p Paths) Messages(roomId string) string {
	return p.root + "/directMessages/" + roomId + "/messages"
}

// FriendRequests is a user's incoming friend request collection, keyed
// by sender id.
func (p Paths) FriendRequests(userId string) string {
	return p.root + "/users/" + userId + "/friendRequests"
}

// OutgoingFriendRequests is a user's outgoing friend request
// collection, keyed by receiver id.
func (p Paths) OutgoingFriendRequests(userId string) string {
	return p.root + "/users/" + userId + "/outgoingFriendRequests"
}

// Friends is a user's friend list collection, keyed by friend user id.
func (p Paths) Friends(userId string) string {
	return p.root + "/users/" + userId + "/friends"
}
