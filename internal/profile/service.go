package profile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/chatconnect/chatconnect/internal/store"
	"github.com/chatconnect/chatconnect/internal/types"
)

// ErrProfileMissing is returned when an operation requires a profile
// that does not exist.
var ErrProfileMissing = errors.New("user profile not found")

// Service manages user profiles and the friend-request flow. Each
// user has a private profile document (which also carries their
// credentials) and a public mirror queryable by username and email.
type Service struct {
	log   *log.Logger
	store store.Store
	paths store.Paths
}

func NewService(logger *log.Logger, st store.Store, paths store.Paths) *Service {
	return &Service{log: logger, store: st, paths: paths}
}

func decodeProfile(userId string, doc store.Document) types.UserProfile {
	return types.UserProfile{
		UserId:    userId,
		Username:  store.StringField(doc, "username"),
		Email:     store.StringField(doc, "email"),
		CreatedAt: store.TimeField(doc, "createdAt"),
	}
}

// Create writes the private profile and its public mirror atomically.
// passwordHash is stored on the private document only.
func (s *Service) Create(ctx context.Context, userId, username, email, passwordHash string) error {
	if err := s.store.Online(ctx); err != nil {
		return err
	}

	privCollection, privKey := s.paths.Profile(userId)
	return s.store.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set(privCollection, privKey, map[string]any{
			"userId":       userId,
			"username":     username,
			"email":        email,
			"passwordHash": passwordHash,
			"createdAt":    store.ServerTimestamp,
		}); err != nil {
			return err
		}

		return tx.Set(s.paths.PublicProfiles(), userId, map[string]any{
			"userId":    userId,
			"username":  username,
			"email":     email,
			"createdAt": store.ServerTimestamp,
		})
	})
}

// Get returns a user's private profile. store.ErrNotFound is passed
// through when no profile exists.
func (s *Service) Get(ctx context.Context, userId string) (types.UserProfile, error) {
	collection, key := s.paths.Profile(userId)
	doc, err := s.store.Get(ctx, collection, key)
	if err != nil {
		return types.UserProfile{}, err
	}
	return decodeProfile(userId, doc), nil
}

// PasswordHash returns the stored credential hash for a user.
func (s *Service) PasswordHash(ctx context.Context, userId string) (string, error) {
	collection, key := s.paths.Profile(userId)
	doc, err := s.store.Get(ctx, collection, key)
	if err != nil {
		return "", err
	}
	return store.StringField(doc, "passwordHash"), nil
}

// GetPublic returns a user's public profile.
func (s *Service) GetPublic(ctx context.Context, userId string) (types.UserProfile, error) {
	doc, err := s.store.Get(ctx, s.paths.PublicProfiles(), userId)
	if err != nil {
		return types.UserProfile{}, err
	}
	return decodeProfile(userId, doc), nil
}

// FindByEmail looks a user up through the public profile collection.
func (s *Service) FindByEmail(ctx context.Context, email string) (types.UserProfile, error) {
	docs, err := s.store.Query(ctx, s.paths.PublicProfiles(), store.Equal("email", email))
	if err != nil {
		return types.UserProfile{}, err
	}
	if len(docs) == 0 {
		return types.UserProfile{}, store.ErrNotFound
	}
	return decodeProfile(docs[0].Key, docs[0]), nil
}

// FindByUsername looks a user up through the public profile
// collection.
func (s *Service) FindByUsername(ctx context.Context, username string) (types.UserProfile, error) {
	docs, err := s.store.Query(ctx, s.paths.PublicProfiles(), store.Equal("username", username))
	if err != nil {
		return types.UserProfile{}, err
	}
	if len(docs) == 0 {
		return types.UserProfile{}, store.ErrNotFound
	}
	return decodeProfile(docs[0].Key, docs[0]), nil
}

// SendFriendRequest records a pending request on both sides: incoming
// for the receiver, outgoing for the sender.
func (s *Service) SendFriendRequest(ctx context.Context, senderId, senderUsername, receiverId string) error {
	if err := s.store.Online(ctx); err != nil {
		return err
	}

	return s.store.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set(s.paths.FriendRequests(receiverId), senderId, map[string]any{
			"senderId":       senderId,
			"senderUsername": senderUsername,
			"createdAt":      store.ServerTimestamp,
		}); err != nil {
			return err
		}

		return tx.Set(s.paths.OutgoingFriendRequests(senderId), receiverId, map[string]any{
			"receiverId": receiverId,
			"createdAt":  store.ServerTimestamp,
		})
	})
}

// AcceptFriendRequest adds both users to each other's friend lists and
// clears the pending request documents on both sides, all in one
// transaction. It returns the sender's username for display.
func (s *Service) AcceptFriendRequest(ctx context.Context, receiverId, senderId, senderUsername string) (string, error) {
	if err := s.store.Online(ctx); err != nil {
		return "", err
	}

	receiver, err := s.Get(ctx, receiverId)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrProfileMissing
	}
	if err != nil {
		return "", fmt.Errorf("get receiver profile: %w", err)
	}

	err = s.store.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set(s.paths.Friends(receiverId), senderId, map[string]any{
			"userId":   senderId,
			"username": senderUsername,
			"addedAt":  store.ServerTimestamp,
		}); err != nil {
			return err
		}

		if err := tx.Set(s.paths.Friends(senderId), receiverId, map[string]any{
			"userId":   receiverId,
			"username": receiver.Username,
			"addedAt":  store.ServerTimestamp,
		}); err != nil {
			return err
		}

		if err := tx.Delete(s.paths.FriendRequests(receiverId), senderId); err != nil {
			return err
		}

		return tx.Delete(s.paths.OutgoingFriendRequests(senderId), receiverId)
	})
	if err != nil {
		return "", fmt.Errorf("accept friend request: %w", err)
	}

	return senderUsername, nil
}

// Friends lists a user's friends.
func (s *Service) Friends(ctx context.Context, userId string) ([]types.Friend, error) {
	docs, err := s.store.Query(ctx, s.paths.Friends(userId))
	if err != nil {
		return nil, err
	}

	friends := make([]types.Friend, 0, len(docs))
	for _, doc := range docs {
		friends = append(friends, types.Friend{
			UserId:   store.StringField(doc, "userId"),
			Username: store.StringField(doc, "username"),
			AddedAt:  store.TimeField(doc, "addedAt"),
		})
	}
	return friends, nil
}

// FriendRequests lists a user's pending incoming requests.
func (s *Service) FriendRequests(ctx context.Context, userId string) ([]types.FriendRequest, error) {
	docs, err := s.store.Query(ctx, s.paths.FriendRequests(userId))
	if err != nil {
		return nil, err
	}

	reqs := make([]types.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		reqs = append(reqs, types.FriendRequest{
			SenderId:       store.StringField(doc, "senderId"),
			SenderUsername: store.StringField(doc, "senderUsername"),
			CreatedAt:      store.TimeField(doc, "createdAt"),
		})
	}
	return reqs, nil
}
