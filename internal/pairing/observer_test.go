package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/chatconnect/chatconnect/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func soloRoom(code, userId string) types.Room {
	return types.Room{
		Code:        code,
		Users:       []string{userId},
		UserDetails: map[string]string{userId: userId},
	}
}

func pairedRoom(code, a, b string) types.Room {
	return types.Room{
		Code:        code,
		Users:       []string{a, b},
		UserDetails: map[string]string{a: a, b: b},
	}
}

func Test_filledSoloRooms(t *testing.T) {
	tcases := []struct {
		name   string
		prev   []types.Room
		curr   []types.Room
		userId string
		want   []string
	}{
		{
			name:   "solo room became two-party",
			prev:   []types.Room{soloRoom("AAAAAA", "A")},
			curr:   []types.Room{pairedRoom("AAAAAA", "A", "B")},
			userId: "A",
			want:   []string{"AAAAAA"},
		},
		{
			name:   "solo room deleted counts as filled",
			prev:   []types.Room{soloRoom("AAAAAA", "A")},
			curr:   nil,
			userId: "A",
			want:   []string{"AAAAAA"},
		},
		{
			name:   "solo room unchanged",
			prev:   []types.Room{soloRoom("AAAAAA", "A")},
			curr:   []types.Room{soloRoom("AAAAAA", "A")},
			userId: "A",
			want:   nil,
		},
		{
			name:   "no previous solo rooms",
			prev:   []types.Room{pairedRoom("AAAAAA", "A", "B")},
			curr:   []types.Room{pairedRoom("AAAAAA", "A", "B")},
			userId: "A",
			want:   nil,
		},
		{
			name:   "someone else's solo room is ignored",
			prev:   []types.Room{soloRoom("BBBBBB", "B")},
			curr:   nil,
			userId: "A",
			want:   nil,
		},
		{
			name: "replacement solo room does not mask the fill",
			prev: []types.Room{soloRoom("AAAAAA", "A")},
			curr: []types.Room{
				pairedRoom("AAAAAA", "A", "B"),
				soloRoom("CCCCCC", "A"),
			},
			userId: "A",
			want:   []string{"AAAAAA"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got := filledSoloRooms(tc.prev, tc.curr, tc.userId)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCurrentInviteCode(t *testing.T) {
	rooms := []types.Room{
		pairedRoom("AAAAAA", "A", "B"),
		soloRoom("CCCCCC", "A"),
	}

	assert.Equal(t, "CCCCCC", CurrentInviteCode(rooms, "A"))
	assert.Equal(t, "", CurrentInviteCode(rooms, "B"))
	assert.Equal(t, "", CurrentInviteCode(nil, "A"))
}

func TestObserveRooms(t *testing.T) {
	t.Run("snapshots follow room changes", func(t *testing.T) {
		svc, _, profiles := newTestService(t)
		ctx := context.Background()

		mustCreateProfile(t, profiles, "A", "alice")

		code, err := svc.CreateRoom(ctx, "A", "alice")
		require.NoError(t, err)

		w, err := svc.ObserveRooms(ctx, "A")
		require.NoError(t, err)
		defer w.Close()

		select {
		case rooms := <-w.Updates():
			require.Len(t, rooms, 1)
			assert.Equal(t, code, rooms[0].Code)
			assert.Equal(t, code, CurrentInviteCode(rooms, "A"))
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for initial snapshot")
		}
	})

	t.Run("re-issues a solo room after pairing", func(t *testing.T) {
		svc, _, profiles := newTestService(t)
		ctx := context.Background()

		mustCreateProfile(t, profiles, "A", "alice")

		code, err := svc.CreateRoom(ctx, "A", "alice")
		require.NoError(t, err)

		w, err := svc.ObserveRooms(ctx, "A")
		require.NoError(t, err)
		defer w.Close()

		require.NoError(t, svc.JoinRoom(ctx, "B", "bob", code))

		// the watcher must mint a replacement solo room with a fresh code
		require.Eventually(t, func() bool {
			rooms, err := svc.RoomsForUser(ctx, "A")
			if err != nil {
				return false
			}
			fresh := CurrentInviteCode(rooms, "A")
			return fresh != "" && fresh != code
		}, 2*time.Second, 10*time.Millisecond, "expected a replacement solo room")

		rooms, err := svc.RoomsForUser(ctx, "A")
		require.NoError(t, err)
		assert.Len(t, rooms, 2, "filled room plus replacement")
	})

	t.Run("close tears down the subscription", func(t *testing.T) {
		svc, _, profiles := newTestService(t)
		ctx := context.Background()

		mustCreateProfile(t, profiles, "A", "alice")

		w, err := svc.ObserveRooms(ctx, "A")
		require.NoError(t, err)

		w.Close()

		require.Eventually(t, func() bool {
			_, open := <-w.Updates()
			return !open
		}, time.Second, 10*time.Millisecond, "updates channel should close")
	})

	t.Run("join then full then replacement scenario", func(t *testing.T) {
		svc, _, profiles := newTestService(t)
		ctx := context.Background()

		mustCreateProfile(t, profiles, "A", "alice")

		r1, err := svc.CreateRoom(ctx, "A", "alice")
		require.NoError(t, err)

		w, err := svc.ObserveRooms(ctx, "A")
		require.NoError(t, err)
		defer w.Close()

		require.NoError(t, svc.JoinRoom(ctx, "B", "bob", r1))

		require.Eventually(t, func() bool {
			rooms, err := svc.RoomsForUser(ctx, "A")
			return err == nil && CurrentInviteCode(rooms, "A") != ""
		}, 2*time.Second, 10*time.Millisecond)

		// the filled room is full for anyone else
		err = svc.JoinRoom(ctx, "C", "carol", r1)
		assert.ErrorIs(t, err, ErrRoomFull)
	})
}
