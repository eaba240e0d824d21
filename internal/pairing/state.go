package pairing

import "github.com/chatconnect/chatconnect/internal/types"

// Phase is a user's pairing state, derived purely from the rooms they
// occupy. It replaces branching over free-form page identifiers with
// an enumerated type and a transition table.
type Phase int

const (
	// PhaseIdle: the user occupies no rooms.
	PhaseIdle Phase = iota
	// PhaseWaiting: the user holds a solo room and its code is their
	// current invite.
	PhaseWaiting
	// PhasePaired: the user is in a two-party room and holds no solo
	// room (a replacement has not been minted yet).
	PhasePaired
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhasePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// phaseTransitions lists the moves the pairing protocol produces. A
// drop back to Idle only happens when rooms are deleted out from
// under the user, which the watcher logs as unexpected.
var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:    {PhaseWaiting, PhasePaired},
	PhaseWaiting: {PhasePaired},
	PhasePaired:  {PhaseWaiting},
}

// CanTransition reports whether moving from p to next is a legal
// transition. Staying in place is always legal.
func (p Phase) CanTransition(next Phase) bool {
	if p == next {
		return true
	}
	for _, t := range phaseTransitions[p] {
		if t == next {
			return true
		}
	}
	return false
}

// DerivePhase computes a user's phase from a snapshot of their rooms.
// Holding a solo room dominates: a user who is paired and has already
// received their replacement solo room is Waiting on that new invite.
func DerivePhase(rooms []types.Room, userId string) Phase {
	paired := false
	for _, r := range rooms {
		if !r.HasUser(userId) {
			continue
		}
		if r.Solo() {
			return PhaseWaiting
		}
		if len(r.Users) == 2 {
			paired = true
		}
	}
	if paired {
		return PhasePaired
	}
	return PhaseIdle
}
