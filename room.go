package main

import (
	"fmt"
	"slices"

	"github.com/go-viper/mapstructure/v2"
)

const (
	MinPlayers = 3

	minMaxPlayers = 3
	maxMaxPlayers = 15
	minTimeLimit  = 3
	maxTimeLimit  = 10
)

type Role string

const (
	RoleUnassigned Role = ""
	RoleSpy        Role = "spy"
	RoleInnocent   Role = "innocent"
)

type Winner string

const (
	WinnerNone      Winner = ""
	WinnerSpy       Winner = "spy"
	WinnerInnocents Winner = "innocents"
)

type WinReason string

const (
	ReasonSpyGuessWin       WinReason = "spy_guess_win"
	ReasonSpyGuessFail      WinReason = "spy_guess_fail"
	ReasonVoteSpyFound      WinReason = "vote_spy_found"
	ReasonVoteWrongInnocent WinReason = "vote_wrong_innocent"
)

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseVoting
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseVoting:
		return "voting"
	case PhaseResolved:
		return "resolved"
	default:
		return "idle"
	}
}

type ScoreTable struct {
	InnocentWin int `json:"innocentWin" mapstructure:"innocentWin"`
	SpyGuessWin int `json:"spyGuessWin" mapstructure:"spyGuessWin"`
	SpyVoteWin  int `json:"spyVoteWin" mapstructure:"spyVoteWin"`
}

type Settings struct {
	CategoryID     string     `json:"categoryId" mapstructure:"categoryId"`
	TimeLimit      int        `json:"timeLimit" mapstructure:"timeLimit"`
	MaxPlayers     int        `json:"maxPlayers" mapstructure:"maxPlayers"`
	SpyCount       int        `json:"spyCount" mapstructure:"spyCount"`
	ShowCheatSheet bool       `json:"showCheatSheet" mapstructure:"showCheatSheet"`
	Scores         ScoreTable `json:"scores" mapstructure:"scores"`
}

func defaultSettings(categoryID string) Settings {
	return Settings{
		CategoryID:     categoryID,
		TimeLimit:      5,
		MaxPlayers:     8,
		SpyCount:       1,
		ShowCheatSheet: true,
		Scores: ScoreTable{
			InnocentWin: 10,
			SpyGuessWin: 20,
			SpyVoteWin:  15,
		},
	}
}

func (s Settings) validate(categories *Categories) error {
	if _, ok := categories.Get(s.CategoryID); !ok {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidSettings, s.CategoryID)
	}
	if s.TimeLimit < minTimeLimit || s.TimeLimit > maxTimeLimit {
		return fmt.Errorf("%w: time limit must be between %d and %d minutes", ErrInvalidSettings, minTimeLimit, maxTimeLimit)
	}
	if s.MaxPlayers < minMaxPlayers || s.MaxPlayers > maxMaxPlayers {
		return fmt.Errorf("%w: max players must be between %d and %d", ErrInvalidSettings, minMaxPlayers, maxMaxPlayers)
	}
	if s.SpyCount != 1 && s.SpyCount != 2 {
		return fmt.Errorf("%w: spy count must be 1 or 2", ErrInvalidSettings)
	}
	if s.Scores.InnocentWin < 0 || s.Scores.SpyGuessWin < 0 || s.Scores.SpyVoteWin < 0 {
		return fmt.Errorf("%w: scores must not be negative", ErrInvalidSettings)
	}
	return nil
}

type PlayerEntry struct {
	Nickname  string `json:"nickname" mapstructure:"nickname"`
	AvatarURL string `json:"avatarUrl,omitempty" mapstructure:"avatarUrl"`
	Score     int    `json:"score" mapstructure:"score"`
}

// RoundState is the shared record of one round. It only exists while the
// room is playing and is recreated by every round start.
type RoundState struct {
	Round      int               `json:"round" mapstructure:"round"`
	Roles      map[string]Role   `json:"roles" mapstructure:"roles"`
	SecretWord string            `json:"secretWord" mapstructure:"secretWord"`
	VotingOpen bool              `json:"votingOpen" mapstructure:"votingOpen"`
	Votes      map[string]string `json:"votes,omitempty" mapstructure:"votes"`
	SpyGuesses map[string]string `json:"spyGuesses,omitempty" mapstructure:"spyGuesses"`
	Winner     Winner            `json:"winner,omitempty" mapstructure:"winner"`
	Reason     WinReason         `json:"reason,omitempty" mapstructure:"reason"`
	Accused    string            `json:"accused,omitempty" mapstructure:"accused"`
	StartTime  int64             `json:"startTime" mapstructure:"startTime"`
}

// RoleOf reports the role of id, which is RoleUnassigned for anyone who
// joined after the round started.
func (g *RoundState) RoleOf(id string) Role {
	if g == nil {
		return RoleUnassigned
	}
	return g.Roles[id]
}

// Spies returns the ids of every spy, sorted.
func (g *RoundState) Spies() []string {
	if g == nil {
		return nil
	}
	var spies []string
	for id, role := range g.Roles {
		if role == RoleSpy {
			spies = append(spies, id)
		}
	}
	slices.Sort(spies)
	return spies
}

type Room struct {
	ID        string                 `json:"-"`
	HostID    string                 `json:"hostId" mapstructure:"hostId"`
	Status    RoomStatus             `json:"status" mapstructure:"status"`
	Settings  Settings               `json:"settings" mapstructure:"settings"`
	Players   map[string]PlayerEntry `json:"players" mapstructure:"players"`
	GameState *RoundState            `json:"gameState,omitempty" mapstructure:"gameState"`
	CreatedAt int64                  `json:"createdAt" mapstructure:"createdAt"`
}

func (r *Room) Phase() Phase {
	if r.Status != StatusPlaying || r.GameState == nil {
		return PhaseIdle
	}
	if r.GameState.Winner != WinnerNone {
		return PhaseResolved
	}
	if r.GameState.VotingOpen {
		return PhaseVoting
	}
	return PhaseActive
}

func (r *Room) IsHost(id string) bool {
	return id != "" && r.HostID == id
}

func (r *Room) HasPlayer(id string) bool {
	_, ok := r.Players[id]
	return ok
}

// PlayerIDs returns the player ids in a stable order.
func (r *Room) PlayerIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for id := range r.Players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func roomPath(roomID string) string {
	return "rooms/" + roomID
}

func gameStatePath(roomID string) string {
	return roomPath(roomID) + "/gameState"
}

func playerPath(roomID, playerID string) string {
	return roomPath(roomID) + "/players/" + playerID
}

// decodeRoom converts a store value for rooms/{roomID} into a Room.
func decodeRoom(roomID string, value any) (*Room, error) {
	if _, ok := value.(map[string]any); !ok {
		return nil, fmt.Errorf("decoding room %s: unexpected value %T", roomID, value)
	}

	var room Room
	if err := mapstructure.Decode(value, &room); err != nil {
		return nil, fmt.Errorf("decoding room %s: %w", roomID, err)
	}
	room.ID = roomID
	if room.Players == nil {
		room.Players = make(map[string]PlayerEntry)
	}

	return &room, nil
}
