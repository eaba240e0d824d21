package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatconnect/chatconnect/internal/store"
	"github.com/chatconnect/chatconnect/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()

	mem := store.NewMemoryStore()
	return NewService(testutil.TestLogger(t), mem, store.NewPaths("test-app")), mem
}

func TestCreate(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "user-a", "alice", "alice@example.com", "hashed"))

	profile, err := svc.Get(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, "user-a", profile.UserId)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.False(t, profile.CreatedAt.IsZero())

	hash, err := svc.PasswordHash(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, "hashed", hash)

	// the public mirror must never carry the credential hash
	doc, err := mem.Get(ctx, store.NewPaths("test-app").PublicProfiles(), "user-a")
	require.NoError(t, err)
	assert.Equal(t, "alice", store.StringField(doc, "username"))
	assert.Empty(t, store.StringField(doc, "passwordHash"))
}

func TestCreate_storeOffline(t *testing.T) {
	svc, mem := newTestService(t)
	mem.SetOnline(false)

	err := svc.Create(context.Background(), "user-a", "alice", "alice@example.com", "hashed")
	assert.ErrorIs(t, err, store.ErrOffline)
}

func TestGet_notFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindByEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "user-a", "alice", "alice@example.com", "h1"))
	require.NoError(t, svc.Create(ctx, "user-b", "bob", "bob@example.com", "h2"))

	profile, err := svc.FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-b", profile.UserId)
	assert.Equal(t, "bob", profile.Username)

	_, err = svc.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindByUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "user-a", "alice", "alice@example.com", "h1"))

	profile, err := svc.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "user-a", profile.UserId)

	_, err = svc.FindByUsername(ctx, "mallory")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFriendRequestFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "user-a", "alice", "alice@example.com", "h1"))
	require.NoError(t, svc.Create(ctx, "user-b", "bob", "bob@example.com", "h2"))

	require.NoError(t, svc.SendFriendRequest(ctx, "user-a", "alice", "user-b"))

	reqs, err := svc.FriendRequests(ctx, "user-b")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "user-a", reqs[0].SenderId)
	assert.Equal(t, "alice", reqs[0].SenderUsername)

	username, err := svc.AcceptFriendRequest(ctx, "user-b", "user-a", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	// both friend lists are populated and the pending documents are
	// gone on both sides
	bobFriends, err := svc.Friends(ctx, "user-b")
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)
	assert.Equal(t, "user-a", bobFriends[0].UserId)
	assert.Equal(t, "alice", bobFriends[0].Username)

	aliceFriends, err := svc.Friends(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, aliceFriends, 1)
	assert.Equal(t, "user-b", aliceFriends[0].UserId)
	assert.Equal(t, "bob", aliceFriends[0].Username)

	reqs, err = svc.FriendRequests(ctx, "user-b")
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestAcceptFriendRequest_missingReceiver(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AcceptFriendRequest(context.Background(), "ghost", "user-a", "alice")
	assert.ErrorIs(t, err, ErrProfileMissing)
}
