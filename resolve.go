package main

// Outcome is the result of a resolved round.
type Outcome struct {
	Winner  Winner
	Reason  WinReason
	Accused string
	Tally   map[string]int
}

// Resolve decides the round winner once every spy has guessed, or once
// every player has voted. It reports false when the round is already
// resolved or neither condition holds yet.
//
// When both conditions hold at once the spy guesses are judged first.
func Resolve(room *Room) (Outcome, bool) {
	if room.Phase() != PhaseActive && room.Phase() != PhaseVoting {
		return Outcome{}, false
	}
	gs := room.GameState

	if o, ok := resolveGuesses(gs); ok {
		return o, true
	}

	if gs.VotingOpen {
		return resolveVotes(room)
	}

	return Outcome{}, false
}

// resolveGuesses: spies win only if every one of them named the secret word.
func resolveGuesses(gs *RoundState) (Outcome, bool) {
	spies := gs.Spies()
	if len(spies) == 0 {
		return Outcome{}, false
	}

	allCorrect := true
	for _, id := range spies {
		guess, ok := gs.SpyGuesses[id]
		if !ok {
			return Outcome{}, false
		}
		if guess != gs.SecretWord {
			allCorrect = false
		}
	}

	if allCorrect {
		return Outcome{Winner: WinnerSpy, Reason: ReasonSpyGuessWin}, true
	}
	return Outcome{Winner: WinnerInnocents, Reason: ReasonSpyGuessFail}, true
}

func resolveVotes(room *Room) (Outcome, bool) {
	voters := room.PlayerIDs()
	if len(voters) == 0 {
		return Outcome{}, false
	}
	for _, id := range voters {
		if _, ok := room.GameState.Votes[id]; !ok {
			return Outcome{}, false
		}
	}

	accused, tally := tallyVotes(voters, room.GameState.Votes)

	o := Outcome{Accused: accused, Tally: tally}
	if room.GameState.RoleOf(accused) == RoleSpy {
		o.Winner = WinnerInnocents
		o.Reason = ReasonVoteSpyFound
	} else {
		o.Winner = WinnerSpy
		o.Reason = ReasonVoteWrongInnocent
	}

	return o, true
}

// tallyVotes counts votes in voter order. The accused is the suspect with
// the strictly highest count; on a tie the suspect first named wins.
func tallyVotes(voters []string, votes map[string]string) (string, map[string]int) {
	tally := make(map[string]int)
	var order []string
	for _, voter := range voters {
		suspect, ok := votes[voter]
		if !ok {
			continue
		}
		if _, seen := tally[suspect]; !seen {
			order = append(order, suspect)
		}
		tally[suspect]++
	}

	accused, best := "", 0
	for _, suspect := range order {
		if tally[suspect] > best {
			accused, best = suspect, tally[suspect]
		}
	}

	return accused, tally
}

// resolutionUpdate is the single write that ends a round: winner, reason,
// closed voting and the new scores together.
func resolutionUpdate(room *Room, o Outcome) map[string]any {
	base := gameStatePath(room.ID)

	updates := map[string]any{
		base + "/winner":     string(o.Winner),
		base + "/reason":     string(o.Reason),
		base + "/votingOpen": false,
	}
	if o.Accused != "" {
		updates[base+"/accused"] = o.Accused
	}
	for path, score := range ApplyScores(room, o) {
		updates[path] = score
	}

	return updates
}
