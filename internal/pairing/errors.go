package pairing

// Reason classifies why a pairing operation failed.
type Reason string

const (
	ReasonNotFound       Reason = "not_found"
	ReasonRoomFull       Reason = "room_full"
	ReasonAlreadyMember  Reason = "already_member"
	ReasonSelfJoin       Reason = "self_join"
	ReasonDuplicatePair  Reason = "duplicate_pair"
	ReasonProfileMissing Reason = "profile_missing"
	ReasonStoreOffline   Reason = "store_offline"
	ReasonStoreConflict  Reason = "store_conflict"
)

// Error is a pairing failure with a user-displayable message. Pairing
// operations report failures through these rather than raising store
// errors to the caller.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrNotFound       = &Error{ReasonNotFound, "room not found, check the code and try again"}
	ErrRoomFull       = &Error{ReasonRoomFull, "this room is already full"}
	ErrAlreadyMember  = &Error{ReasonAlreadyMember, "you are already in this room"}
	ErrSelfJoin       = &Error{ReasonSelfJoin, "you can't join your own room"}
	ErrDuplicatePair  = &Error{ReasonDuplicatePair, "you already have a room with this user"}
	ErrProfileMissing = &Error{ReasonProfileMissing, "user profile not found"}
	ErrStoreOffline   = &Error{ReasonStoreOffline, "you appear to be offline, try again"}
	ErrStoreConflict  = &Error{ReasonStoreConflict, "the request could not be completed, try again"}
)
