package main

import (
	"slices"
	"strings"
	"time"
)

type PlayerView struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Score     int    `json:"score"`
	IsHost    bool   `json:"isHost"`
	HasVoted  bool   `json:"hasVoted"`
	Role      Role   `json:"role,omitempty"`
}

type RoundView struct {
	Round      int               `json:"round"`
	Role       Role              `json:"role"`
	SecretWord string            `json:"secretWord,omitempty"`
	Items      []string          `json:"items,omitempty"`
	VotingOpen bool              `json:"votingOpen"`
	VoteCount  int               `json:"voteCount"`
	YourVote   string            `json:"yourVote,omitempty"`
	YourGuess  string            `json:"yourGuess,omitempty"`
	SpyCount   int               `json:"spyCount"`
	GuessCount int               `json:"guessCount"`
	StartTime  int64             `json:"startTime"`
	Deadline   int64             `json:"deadline"`
	Winner     Winner            `json:"winner,omitempty"`
	Reason     WinReason         `json:"reason,omitempty"`
	Accused    string            `json:"accused,omitempty"`
	Votes      map[string]string `json:"votes,omitempty"`
	SpyGuesses map[string]string `json:"spyGuesses,omitempty"`
}

// RoomView is one player's picture of a room. Spies never see the secret
// word, and nobody sees other roles until the round is resolved.
type RoomView struct {
	Type     string       `json:"type"`
	RoomID   string       `json:"roomId"`
	You      string       `json:"you"`
	HostID   string       `json:"hostId"`
	Status   RoomStatus   `json:"status"`
	Phase    string       `json:"phase"`
	Category string       `json:"category"`
	Settings Settings     `json:"settings"`
	Players  []PlayerView `json:"players"`
	Round    *RoundView   `json:"round,omitempty"`
}

func buildView(room *Room, viewer string, categories *Categories) RoomView {
	gs := room.GameState
	resolved := room.Phase() == PhaseResolved

	v := RoomView{
		Type:     "room_state",
		RoomID:   room.ID,
		You:      viewer,
		HostID:   room.HostID,
		Status:   room.Status,
		Phase:    room.Phase().String(),
		Settings: room.Settings,
		Players:  make([]PlayerView, 0, len(room.Players)),
	}

	category, ok := categories.Get(room.Settings.CategoryID)
	if ok {
		v.Category = category.Name
	}

	for id, p := range room.Players {
		pv := PlayerView{
			ID:        id,
			Nickname:  p.Nickname,
			AvatarURL: p.AvatarURL,
			Score:     p.Score,
			IsHost:    room.IsHost(id),
		}
		if gs != nil {
			_, pv.HasVoted = gs.Votes[id]
			if resolved || id == viewer {
				pv.Role = gs.RoleOf(id)
			}
		}
		v.Players = append(v.Players, pv)
	}
	slices.SortFunc(v.Players, func(a, b PlayerView) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return strings.Compare(a.Nickname, b.Nickname)
	})

	if gs == nil || room.Status != StatusPlaying {
		return v
	}

	role := gs.RoleOf(viewer)
	rv := &RoundView{
		Round:      gs.Round,
		Role:       role,
		VotingOpen: gs.VotingOpen,
		VoteCount:  len(gs.Votes),
		YourVote:   gs.Votes[viewer],
		YourGuess:  gs.SpyGuesses[viewer],
		SpyCount:   len(gs.Spies()),
		GuessCount: len(gs.SpyGuesses),
		StartTime:  gs.StartTime,
		Deadline:   gs.StartTime + (time.Duration(room.Settings.TimeLimit) * time.Minute).Milliseconds(),
		Winner:     gs.Winner,
		Reason:     gs.Reason,
		Accused:    gs.Accused,
	}

	if role == RoleInnocent || resolved {
		rv.SecretWord = gs.SecretWord
	}
	// Spies guess from the category list, so they always get it.
	if ok && (role == RoleSpy || room.Settings.ShowCheatSheet) {
		rv.Items = category.Items
	}
	if resolved {
		rv.Votes = gs.Votes
		rv.SpyGuesses = gs.SpyGuesses
	}

	v.Round = rv
	return v
}
