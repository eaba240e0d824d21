package pairing

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/chatconnect/chatconnect/internal/stats"
	"github.com/chatconnect/chatconnect/internal/store"
	"github.com/chatconnect/chatconnect/internal/types"
)

// ProfileSource resolves a user's profile. Get returns
// store.ErrNotFound when the user has no profile document.
type ProfileSource interface {
	Get(ctx context.Context, userId string) (types.UserProfile, error)
}

// Service pairs two users into an exclusive two-party room via a
// shared invite code. All atomicity is delegated to the store's
// transaction primitive; the service itself holds no mutable state.
type Service struct {
	log      *log.Logger
	store    store.Store
	paths    store.Paths
	profiles ProfileSource
	stats    stats.Provider

	// generateCode is overridable in tests for deterministic codes.
	generateCode func() (string, error)
}

func NewService(logger *log.Logger, st store.Store, paths store.Paths, profiles ProfileSource, sp stats.Provider) *Service {
	return &Service{
		log:          logger,
		store:        st,
		paths:        paths,
		profiles:     profiles,
		stats:        sp,
		generateCode: GenerateCode,
	}
}

func roomFields(code, userId, username string) map[string]any {
	return map[string]any{
		"code":         code,
		"users":        []string{userId},
		"user_details": map[string]string{userId: username},
		"createdAt":    store.ServerTimestamp,
	}
}

func decodeRoom(doc store.Document) types.Room {
	r := types.Room{
		Code:        store.StringField(doc, "code"),
		Users:       store.StringsField(doc, "users"),
		UserDetails: store.StringMapField(doc, "user_details"),
		CreatedAt:   store.TimeField(doc, "createdAt"),
	}
	if r.Code == "" {
		r.Code = doc.Key
	}
	if r.UserDetails == nil {
		r.UserDetails = make(map[string]string)
	}
	return r
}

func decodeRooms(docs []store.Document) []types.Room {
	rooms := make([]types.Room, 0, len(docs))
	for _, doc := range docs {
		rooms = append(rooms, decodeRoom(doc))
	}
	return rooms
}

// CreateRoom mints a solo room for userId and returns its invite code.
// The code doubles as the room's key and becomes the user's current
// invite until consumed by a join.
func (s *Service) CreateRoom(ctx context.Context, userId, username string) (string, error) {
	if err := s.store.Online(ctx); err != nil {
		return "", ErrStoreOffline
	}

	code, err := s.generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	if err := s.store.Set(ctx, s.paths.Rooms(), code, roomFields(code, userId, username)); err != nil {
		return "", s.translate(err)
	}

	s.log.Printf("created room %q for user %q", code, userId)
	s.stats.Incr(stats.RoomsCreated)
	return code, nil
}

// JoinRoom adds joinerId to the room at code. The join is a single
// atomic transaction; the failure checks run in a fixed order
// (SelfJoin, NotFound, RoomFull, AlreadyMember, DuplicatePair) and the
// first failing check determines the reported reason.
func (s *Service) JoinRoom(ctx context.Context, joinerId, joinerUsername, code string) error {
	if err := s.store.Online(ctx); err != nil {
		s.stats.Incr(stats.JoinFailures)
		return ErrStoreOffline
	}

	code = NormalizeCode(code)

	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		joinerDocs, err := tx.Query(s.paths.Rooms(), store.Contains("users", joinerId))
		if err != nil {
			return err
		}
		held := decodeRooms(joinerDocs)

		for _, r := range held {
			if r.Solo() && r.Code == code {
				return ErrSelfJoin
			}
		}

		doc, err := tx.Get(s.paths.Rooms(), code)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		room := decodeRoom(doc)
		if len(room.Users) >= 2 {
			return ErrRoomFull
		}
		if room.HasUser(joinerId) {
			return ErrAlreadyMember
		}

		occupant := room.Users[0]
		for _, r := range held {
			if len(r.Users) == 2 && r.OtherUser(joinerId) == occupant {
				return ErrDuplicatePair
			}
		}

		room.Users = append(room.Users, joinerId)
		room.UserDetails[joinerId] = joinerUsername

		return tx.Set(s.paths.Rooms(), code, map[string]any{
			"code":         room.Code,
			"users":        room.Users,
			"user_details": room.UserDetails,
			"createdAt":    doc.Fields["createdAt"],
		})
	})
	if err != nil {
		s.stats.Incr(stats.JoinFailures)
		return s.translate(err)
	}

	s.log.Printf("user %q joined room %q", joinerId, code)
	s.stats.Incr(stats.RoomsJoined)
	return nil
}

// CreateRoomForOriginalUser re-issues a fresh solo room for a user
// whose previous solo room was just paired, so they always hold an
// invite code. Alongside the room it records a provenance mapping
// document keyed by the new code; the mapping is an audit trail only
// and is never consulted by JoinRoom.
func (s *Service) CreateRoomForOriginalUser(ctx context.Context, originalUserId string) (string, error) {
	if err := s.store.Online(ctx); err != nil {
		return "", ErrStoreOffline
	}

	prof, err := s.profiles.Get(ctx, originalUserId)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrProfileMissing
	}
	if err != nil {
		return "", s.translate(err)
	}

	code, err := s.generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	if err := s.store.Set(ctx, s.paths.Rooms(), code, roomFields(code, originalUserId, prof.Username)); err != nil {
		return "", s.translate(err)
	}

	if err := s.store.Set(ctx, s.paths.RoomCodes(), code, map[string]any{
		"roomId":    code,
		"createdBy": originalUserId,
		"createdAt": store.ServerTimestamp,
	}); err != nil {
		return "", s.translate(err)
	}

	s.log.Printf("re-issued room %q for user %q", code, originalUserId)
	s.stats.Incr(stats.RoomsCreated)
	return code, nil
}

// DeleteRoom removes a room and its provenance mapping. The mapping
// delete is best-effort; a failure there is logged and the room is
// still removed. Callers are not checked for membership.
func (s *Service) DeleteRoom(ctx context.Context, roomId string) bool {
	if _, err := s.store.Get(ctx, s.paths.Rooms(), roomId); err != nil {
		s.log.Printf("delete room %q: %v", roomId, err)
		return false
	}

	if err := s.store.Delete(ctx, s.paths.RoomCodes(), roomId); err != nil {
		s.log.Printf("delete room code mapping %q: %v", roomId, err)
	}

	if err := s.store.Delete(ctx, s.paths.Rooms(), roomId); err != nil {
		s.log.Printf("delete room %q: %v", roomId, err)
		return false
	}

	s.stats.Incr(stats.RoomsDeleted)
	return true
}

// RoomsForUser returns the rooms currently containing userId.
func (s *Service) RoomsForUser(ctx context.Context, userId string) ([]types.Room, error) {
	docs, err := s.store.Query(ctx, s.paths.Rooms(), store.Contains("users", userId))
	if err != nil {
		return nil, s.translate(err)
	}
	return decodeRooms(docs), nil
}

// translate converts store-level failures into the pairing taxonomy;
// pairing errors pass through untouched.
func (s *Service) translate(err error) error {
	var perr *Error
	switch {
	case errors.As(err, &perr):
		return perr
	case errors.Is(err, store.ErrOffline):
		return ErrStoreOffline
	case errors.Is(err, store.ErrConflict):
		return ErrStoreConflict
	default:
		s.log.Println("store error:", err)
		return fmt.Errorf("pairing: %w", err)
	}
}
