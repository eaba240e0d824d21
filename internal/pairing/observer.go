package pairing

import (
	"context"

	"github.com/chatconnect/chatconnect/internal/stats"
	"github.com/chatconnect/chatconnect/internal/store"
	"github.com/chatconnect/chatconnect/internal/types"
)

// CurrentInviteCode returns the code of the user's solo room, or ""
// when the user holds none. At most one solo room should exist per
// user; if the invariant is ever violated the first encountered wins.
func CurrentInviteCode(rooms []types.Room, userId string) string {
	for _, r := range rooms {
		if r.Solo() && r.Users[0] == userId {
			return r.Code
		}
	}
	return ""
}

// filledSoloRooms is the snapshot diff rule: it returns the codes of
// rooms that were solo rooms of userId in prev but are no longer in
// the solo subset of curr. A room leaving the solo subset means the
// user's invite was just consumed (or the room was deleted; the
// original treats both as a fill).
func filledSoloRooms(prev, curr []types.Room, userId string) []string {
	currSolo := make(map[string]struct{})
	for _, r := range curr {
		if r.Solo() && r.Users[0] == userId {
			currSolo[r.Code] = struct{}{}
		}
	}

	var filled []string
	for _, r := range prev {
		if !r.Solo() || r.Users[0] != userId {
			continue
		}
		if _, ok := currSolo[r.Code]; !ok {
			filled = append(filled, r.Code)
		}
	}
	return filled
}

// Watcher is a standing subscription over the rooms containing one
// user. It reduces consecutive snapshots: when the user's solo room
// leaves the solo subset, the watcher infers the invite was consumed
// and mints a replacement solo room so the user can re-invite.
type Watcher struct {
	svc     *Service
	userId  string
	sub     store.Subscription
	updates chan []types.Room
	phase   Phase
}

// ObserveRooms starts a watcher for userId. The caller must Close it
// when its owning context goes away; a leaked watcher leaks the
// store's realtime channel.
func (s *Service) ObserveRooms(ctx context.Context, userId string) (*Watcher, error) {
	sub, err := s.store.Subscribe(ctx, s.paths.Rooms(), store.Contains("users", userId))
	if err != nil {
		return nil, s.translate(err)
	}

	w := &Watcher{
		svc:     s,
		userId:  userId,
		sub:     sub,
		updates: make(chan []types.Room, 16),
		phase:   PhaseIdle,
	}

	s.stats.Incr(stats.ActiveSubscriptions)
	go w.loop(ctx)
	return w, nil
}

// Updates yields the user's current room set on every change. The
// channel is closed after Close.
func (w *Watcher) Updates() <-chan []types.Room {
	return w.updates
}

// Phase returns the last phase the watcher derived. Only meaningful
// from the goroutine consuming Updates.
func (w *Watcher) Phase() Phase {
	return w.phase
}

func (w *Watcher) Close() {
	w.sub.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		close(w.updates)
		w.svc.stats.Decr(stats.ActiveSubscriptions)
	}()

	var prev []types.Room
	first := true

	for docs := range w.sub.Updates() {
		curr := decodeRooms(docs)

		if !first {
			filled := filledSoloRooms(prev, curr, w.userId)
			// mint a replacement only if the user is not already
			// holding another solo room
			if len(filled) > 0 && CurrentInviteCode(curr, w.userId) == "" {
				code, err := w.svc.CreateRoomForOriginalUser(ctx, w.userId)
				if err != nil {
					w.svc.log.Printf("re-issue room for %q: %v", w.userId, err)
				} else {
					w.svc.log.Printf("solo room of %q was filled, re-issued as %q", w.userId, code)
				}
			}
		}

		next := DerivePhase(curr, w.userId)
		if next != w.phase {
			if !w.phase.CanTransition(next) {
				w.svc.log.Printf("unexpected phase transition for %q: %s -> %s", w.userId, w.phase, next)
			}
			w.phase = next
		}

		prev = curr
		first = false

		select {
		case w.updates <- curr:
		default:
			// drop the oldest snapshot rather than block the reducer
			select {
			case <-w.updates:
			default:
			}
			w.updates <- curr
		}
	}
}
