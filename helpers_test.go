package main

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

const testRoomID = "TEST"

func testCategories(t *testing.T) *Categories {
	t.Helper()

	c, err := loadCategories("")
	require.NoError(t, err)

	return c
}

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// newTestRoom returns a waiting room hosted by the first id.
func newTestRoom(ids ...string) *Room {
	room := &Room{
		ID:       testRoomID,
		Status:   StatusWaiting,
		Settings: defaultSettings("places"),
		Players:  make(map[string]PlayerEntry),
	}
	if len(ids) > 0 {
		room.HostID = ids[0]
	}
	for _, id := range ids {
		room.Players[id] = PlayerEntry{Nickname: "nick-" + id}
	}

	return room
}

// playingRoom returns a room in the middle of round 1.
func playingRoom(roles map[string]Role, word string) *Room {
	ids := make([]string, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}

	room := newTestRoom(ids...)
	room.HostID = "a"
	room.Status = StatusPlaying
	room.GameState = &RoundState{
		Round:      1,
		Roles:      roles,
		SecretWord: word,
	}

	return room
}

// putRoom writes room into store and returns the stored copy.
func putRoom(t *testing.T, store RoomStore, room *Room) *Room {
	t.Helper()

	require.NoError(t, store.Set(context.Background(), roomPath(room.ID), room))

	return getRoom(t, store, room.ID)
}

func getRoom(t *testing.T, store RoomStore, roomID string) *Room {
	t.Helper()

	v, ok, err := store.Get(context.Background(), roomPath(roomID))
	require.NoError(t, err)
	require.True(t, ok, "room %s is missing", roomID)

	room, err := decodeRoom(roomID, v)
	require.NoError(t, err)

	return room
}

// apply commits updates and returns the room as stored afterwards.
func apply(t *testing.T, store RoomStore, roomID string, updates map[string]any) *Room {
	t.Helper()

	require.NoError(t, store.Update(context.Background(), updates))

	return getRoom(t, store, roomID)
}
