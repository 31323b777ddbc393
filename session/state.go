// Package session holds the turn-counted conversation memory.
package session

import (
	"errors"
	"fmt"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// DefaultTurnLimit is the number of user turns allowed before a reset.
const DefaultTurnLimit = 5

// ErrExhausted is returned when a turn is recorded on a session that already
// reached its turn limit.
var ErrExhausted = errors.New("session: turn limit reached")

// Phase is the lifecycle position of a session.
type Phase int

const (
	Fresh Phase = iota
	Active
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "fresh"
	case Active:
		return "active"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the conversation history plus its turn counter.
//
// State is not safe for concurrent use. The conversation coordinator
// serializes every access through its session worker.
type State struct {
	history []model.Utterance
	turns   int
	limit   int
}

// New creates a fresh session that accepts limit user turns.
func New(limit int) (*State, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("turn limit must be positive, got %d", limit)
	}
	return &State{limit: limit}, nil
}

// Phase derives the lifecycle phase from the turn counter and history.
func (s *State) Phase() Phase {
	switch {
	case s.turns >= s.limit:
		return Exhausted
	case s.turns == 0 && len(s.history) == 0:
		return Fresh
	default:
		return Active
	}
}

// Exhausted reports whether further user turns are rejected.
func (s *State) Exhausted() bool {
	return s.turns >= s.limit
}

func (s *State) Turns() int { return s.turns }
func (s *State) Limit() int { return s.limit }
func (s *State) Len() int   { return len(s.history) }

// History returns a copy of the conversation in chronological order.
func (s *State) History() []model.Utterance {
	out := make([]model.Utterance, len(s.history))
	copy(out, s.history)
	return out
}

// RecordTurn appends one user/assistant exchange and advances the counter.
func (s *State) RecordTurn(user, assistant string) error {
	if s.Exhausted() {
		return ErrExhausted
	}
	s.history = append(s.history, model.User(user), model.Assistant(assistant))
	s.turns++
	return nil
}

// AppendAssistant adds an assistant utterance that is not part of a user
// turn, such as the opening greeting or the closing message.
func (s *State) AppendAssistant(text string) {
	s.history = append(s.history, model.Assistant(text))
}

// Reset clears the history and zeroes the turn counter.
func (s *State) Reset() {
	s.history = nil
	s.turns = 0
}
