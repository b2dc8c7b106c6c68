package main

// Points returns what each player on the winning side earns for o.
func Points(scores ScoreTable, o Outcome) int {
	switch {
	case o.Winner == WinnerSpy && o.Reason == ReasonSpyGuessWin:
		return scores.SpyGuessWin
	case o.Winner == WinnerSpy:
		return scores.SpyVoteWin
	case o.Winner == WinnerInnocents:
		return scores.InnocentWin
	default:
		return 0
	}
}

func winningRole(w Winner) Role {
	switch w {
	case WinnerSpy:
		return RoleSpy
	case WinnerInnocents:
		return RoleInnocent
	default:
		return RoleUnassigned
	}
}

// ApplyScores returns the new score of every player on the winning side,
// keyed by store path. Scores are read from room, which the caller must
// have loaded right before resolving.
func ApplyScores(room *Room, o Outcome) map[string]any {
	role := winningRole(o.Winner)
	if role == RoleUnassigned || room.GameState == nil {
		return nil
	}
	points := Points(room.Settings.Scores, o)

	updates := make(map[string]any)
	for id, r := range room.GameState.Roles {
		if r != role {
			continue
		}
		// Players who left mid-round keep no score.
		player, ok := room.Players[id]
		if !ok {
			continue
		}
		updates[playerPath(room.ID, id)+"/score"] = player.Score + points
	}

	return updates
}

// ResetScores returns a zero score for every player.
func ResetScores(room *Room) map[string]any {
	updates := make(map[string]any, len(room.Players))
	for id := range room.Players {
		updates[playerPath(room.ID, id)+"/score"] = 0
	}
	return updates
}
