package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"
)

const maxNicknameLength = 24

// Each transition below checks the room and actor, then returns the
// multi-path update that performs it. Nothing is written here.

func joinUpdate(room *Room, playerID, nickname, avatarURL string) (map[string]any, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return nil, fmt.Errorf("%w: nickname must be 1-%d characters", ErrInvalidNickname, maxNicknameLength)
	}
	if room.Status == StatusFinished {
		return nil, fmt.Errorf("%w: room is closed", ErrInvalidPhase)
	}

	path := playerPath(room.ID, playerID)

	if existing, ok := room.Players[playerID]; ok {
		if existing.Nickname == nickname && existing.AvatarURL == avatarURL {
			return nil, nil
		}
		return map[string]any{
			path + "/nickname":  nickname,
			path + "/avatarUrl": nullable(avatarURL),
		}, nil
	}

	if room.Status != StatusWaiting {
		return nil, fmt.Errorf("%w: a round is in progress", ErrInvalidPhase)
	}
	if len(room.Players) >= room.Settings.MaxPlayers {
		return nil, fmt.Errorf("%w: %d/%d players", ErrRoomFull, len(room.Players), room.Settings.MaxPlayers)
	}
	for id, p := range room.Players {
		if id != playerID && strings.EqualFold(p.Nickname, nickname) {
			return nil, fmt.Errorf("%w: %q is already taken", ErrInvalidNickname, nickname)
		}
	}

	return map[string]any{
		path: PlayerEntry{Nickname: nickname, AvatarURL: avatarURL},
	}, nil
}

func settingsUpdate(room *Room, actor string, s Settings, categories *Categories) (map[string]any, error) {
	if !room.IsHost(actor) {
		return nil, ErrNotHost
	}
	if room.Status != StatusWaiting {
		return nil, fmt.Errorf("%w: settings can only change in the lobby", ErrInvalidPhase)
	}
	if err := s.validate(categories); err != nil {
		return nil, err
	}
	if s.MaxPlayers < len(room.Players) {
		return nil, fmt.Errorf("%w: %d players already joined", ErrInvalidSettings, len(room.Players))
	}

	return map[string]any{
		roomPath(room.ID) + "/settings": s,
	}, nil
}

func kickUpdate(room *Room, actor, target string) (map[string]any, error) {
	if !room.IsHost(actor) {
		return nil, ErrNotHost
	}
	if target == room.HostID {
		return nil, fmt.Errorf("%w: the host cannot be kicked", ErrInvalidPhase)
	}
	if !room.HasPlayer(target) {
		return nil, ErrNotPlayer
	}
	if p := room.Phase(); p == PhaseActive || p == PhaseVoting {
		return nil, fmt.Errorf("%w: cannot kick during a round", ErrInvalidPhase)
	}

	return map[string]any{
		playerPath(room.ID, target): nil,
	}, nil
}

type roundStart struct {
	updates map[string]any
	round   int

	// warning is ErrEmptyCategory when FallbackWord had to be used.
	warning error
}

// startRoundUpdate deals roles and a secret word.
func startRoundUpdate(room *Room, actor string, rng *rand.Rand, categories *Categories, now time.Time) (*roundStart, error) {
	if !room.IsHost(actor) {
		return nil, ErrNotHost
	}
	if room.Status == StatusFinished {
		return nil, fmt.Errorf("%w: room is closed", ErrInvalidPhase)
	}
	if p := room.Phase(); p != PhaseIdle && p != PhaseResolved {
		return nil, fmt.Errorf("%w: a round is already running", ErrInvalidPhase)
	}

	roles, err := AssignRoles(rng, room.PlayerIDs(), room.Settings.SpyCount)
	if err != nil {
		return nil, err
	}

	category, _ := categories.Get(room.Settings.CategoryID)
	word, warning := PickWord(rng, category)
	if warning != nil && !errors.Is(warning, ErrEmptyCategory) {
		return nil, warning
	}

	round := 1
	if room.GameState != nil {
		round = room.GameState.Round + 1
	}

	return &roundStart{
		updates: map[string]any{
			gameStatePath(room.ID): RoundState{
				Round:      round,
				Roles:      roles,
				SecretWord: word,
				StartTime:  now.UnixMilli(),
			},
			roomPath(room.ID) + "/status": StatusPlaying,
		},
		round:   round,
		warning: warning,
	}, nil
}

func nextRoundUpdate(room *Room, actor string, rng *rand.Rand, categories *Categories, now time.Time) (*roundStart, error) {
	if !room.IsHost(actor) {
		return nil, ErrNotHost
	}
	if room.Phase() != PhaseResolved {
		return nil, fmt.Errorf("%w: the round has not been resolved", ErrInvalidPhase)
	}
	return startRoundUpdate(room, actor, rng, categories, now)
}

// startVoteUpdate opens a fresh vote. actor is empty when the round timer
// opens it.
func startVoteUpdate(room *Room, actor string) (map[string]any, error) {
	if actor != "" && !room.HasPlayer(actor) {
		return nil, ErrNotPlayer
	}
	if p := room.Phase(); p != PhaseActive && p != PhaseVoting {
		return nil, fmt.Errorf("%w: no round is running", ErrInvalidPhase)
	}

	base := gameStatePath(room.ID)
	return map[string]any{
		base + "/votingOpen": true,
		base + "/votes":      nil,
	}, nil
}

func castVoteUpdate(room *Room, voter, suspect string) (map[string]any, error) {
	if !room.HasPlayer(voter) || !room.HasPlayer(suspect) {
		return nil, ErrNotPlayer
	}
	if room.Phase() != PhaseVoting {
		return nil, fmt.Errorf("%w: voting is not open", ErrInvalidPhase)
	}

	return map[string]any{
		gameStatePath(room.ID) + "/votes/" + voter: suspect,
	}, nil
}

func castSpyGuessUpdate(room *Room, spy, word string) (map[string]any, error) {
	if !room.HasPlayer(spy) {
		return nil, ErrNotPlayer
	}
	if p := room.Phase(); p != PhaseActive && p != PhaseVoting {
		return nil, fmt.Errorf("%w: no round is running", ErrInvalidPhase)
	}
	if room.GameState.RoleOf(spy) != RoleSpy {
		return nil, ErrNotSpy
	}
	if strings.TrimSpace(word) == "" {
		return nil, fmt.Errorf("%w: guess is empty", ErrInvalidGuess)
	}

	return map[string]any{
		gameStatePath(room.ID) + "/spyGuesses/" + spy: word,
	}, nil
}

// newGameUpdate returns the room to the lobby with every score at zero.
func newGameUpdate(room *Room, actor string) (map[string]any, error) {
	if !room.IsHost(actor) {
		return nil, ErrNotHost
	}
	if room.Phase() != PhaseResolved {
		return nil, fmt.Errorf("%w: the round has not been resolved", ErrInvalidPhase)
	}

	updates := ResetScores(room)
	updates[gameStatePath(room.ID)] = nil
	updates[roomPath(room.ID)+"/status"] = StatusWaiting

	return updates, nil
}

func closeRoomUpdate(room *Room, actor string) (map[string]any, error) {
	if !room.IsHost(actor) {
		return nil, ErrNotHost
	}
	if room.Status == StatusFinished {
		return nil, fmt.Errorf("%w: room is already closed", ErrInvalidPhase)
	}

	return map[string]any{
		gameStatePath(room.ID):        nil,
		roomPath(room.ID) + "/status": StatusFinished,
	}, nil
}

// nullable maps "" to nil so the store drops the field.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
