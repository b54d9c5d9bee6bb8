package story

import (
	"fmt"
	"strings"
)

// Player is one named participant at the table.
type Player struct {
	Name string

	// VoiceID is the voice the player's lines are echoed with. Empty uses
	// the configured player voice.
	VoiceID string
}

// label prefixes action with the player's name, the form the model sees in
// the transcript. Unnamed players speak unprefixed.
func (p Player) label(action string) string {
	if p.Name == "" {
		return action
	}
	return p.Name + ": " + action
}

// Roster rotates turns between players in the order they joined. The zero
// value holds a single unnamed player.
//
// A Roster is not safe for concurrent use; the shell owns it.
type Roster struct {
	players []Player
	current int
	turn    int
}

// NewRoster returns a roster over players. Players without a voice are
// assigned one from pool in turn, cycling when the pool is shorter than the
// roster.
func NewRoster(players []Player, pool []string) *Roster {
	r := &Roster{players: make([]Player, len(players)), turn: 1}
	copy(r.players, players)
	next := 0
	for i := range r.players {
		if r.players[i].VoiceID == "" && len(pool) > 0 {
			r.players[i].VoiceID = pool[next%len(pool)]
			next++
		}
	}
	return r
}

// Players returns the roster in turn order.
func (r *Roster) Players() []Player {
	out := make([]Player, len(r.players))
	copy(out, r.players)
	return out
}

// Current returns the player whose turn it is.
func (r *Roster) Current() Player {
	if len(r.players) == 0 {
		return Player{}
	}
	return r.players[r.current]
}

// Turn returns the 1-based number of the current turn.
func (r *Roster) Turn() int {
	if r.turn == 0 {
		return 1
	}
	return r.turn
}

// Advance hands the turn to the next player.
func (r *Roster) Advance() {
	r.turn = r.Turn() + 1
	if len(r.players) > 0 {
		r.current = (r.current + 1) % len(r.players)
	}
}

// Names returns the player names in turn order, skipping unnamed players.
func (r *Roster) Names() []string {
	names := make([]string, 0, len(r.players))
	for _, p := range r.players {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return names
}

// OpeningInstruction asks the model to set the first scene for names.
func OpeningInstruction(names []string) string {
	who := "The players"
	if len(names) > 0 {
		who = fmt.Sprintf("The players (%s)", strings.Join(names, ", "))
	}
	return who + " are at the very beginning of their adventure. " +
		"Describe the scene vividly and give them a clear starting point or question to prompt their first action."
}
