// Package chatlog records question/answer turns and mirrors them to disk.
package chatlog

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one answered question. Immutable once appended.
type Turn struct {
	Question  string
	Answer    string
	CreatedAt time.Time
}

// Session is the ordered history of turns for one document.
// It is a value: Append returns a new Session and never touches the old one.
type Session struct {
	ID         string
	DocumentID string
	StartedAt  time.Time
	turns      []Turn
}

// NewSession starts an empty session for docID.
func NewSession(docID string, startedAt time.Time) Session {
	return Session{
		ID:         uuid.NewString(),
		DocumentID: docID,
		StartedAt:  startedAt,
	}
}

// Append returns s with turn added to the end.
func Append(s Session, turn Turn) Session {
	turns := make([]Turn, len(s.turns), len(s.turns)+1)
	copy(turns, s.turns)
	s.turns = append(turns, turn)
	return s
}

// Turns returns a copy of the session's turns in order.
func (s Session) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

// Len returns the number of turns.
func (s Session) Len() int { return len(s.turns) }
