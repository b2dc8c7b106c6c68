package main

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// FallbackWord is drawn when a category has no items.
const FallbackWord = "Bilinmeyen"

// newRand returns a PRNG seeded from crypto/rand.
func newRand() (*rand.Rand, error) {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}

	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:]))), nil
}

// AssignRoles shuffles playerIDs and labels the first spyCount of them as spies.
// The caller's slice is left untouched.
func AssignRoles(rng *rand.Rand, playerIDs []string, spyCount int) (map[string]Role, error) {
	if len(playerIDs) < MinPlayers {
		return nil, fmt.Errorf("%w: have %d, need at least %d", ErrInvalidRoomSize, len(playerIDs), MinPlayers)
	}
	if spyCount < 1 || spyCount >= len(playerIDs) {
		return nil, fmt.Errorf("%w: %d spies for %d players", ErrInvalidRoomSize, spyCount, len(playerIDs))
	}

	ids := make([]string, len(playerIDs))
	copy(ids, playerIDs)

	// Fisher-Yates
	for i := len(ids) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}

	roles := make(map[string]Role, len(ids))
	for i, id := range ids {
		if _, dup := roles[id]; dup {
			return nil, fmt.Errorf("%w: duplicate player %q", ErrInvalidRoomSize, id)
		}
		if i < spyCount {
			roles[id] = RoleSpy
		} else {
			roles[id] = RoleInnocent
		}
	}

	return roles, nil
}

// PickWord draws a secret word from the category. An empty category yields
// FallbackWord along with ErrEmptyCategory so the round can still start.
func PickWord(rng *rand.Rand, category *Category) (string, error) {
	if category == nil || len(category.Items) == 0 {
		id := ""
		if category != nil {
			id = category.ID
		}
		return FallbackWord, fmt.Errorf("%w: %q", ErrEmptyCategory, id)
	}

	return category.Items[rng.IntN(len(category.Items))], nil
}
