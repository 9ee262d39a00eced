// Package session holds the in-memory state of one interactive
// conversation.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	User      Speaker = "user"
	Assistant Speaker = "assistant"
)

// TimestampLayout is used in the export header and file name.
const TimestampLayout = "20060102_150405"

// ErrEmptySpeaker is returned by AppendTurn when no speaker is given.
var ErrEmptySpeaker = errors.New("turn speaker is empty")

// Turn is one message in the conversation history.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Message string  `json:"message"`
}

// Stats summarises the history for display.
type Stats struct {
	Total int
	User  int
}

// State is the per-session context: ordered history, the one-shot pending
// input slot, and the answering service used for every turn. It is created
// once at session start and lives in memory only. Turns are processed one
// at a time, so State does no locking.
type State struct {
	history []Turn
	pending *string
	service any
}

// New returns an empty session bound to service. The handle is opaque to
// this package.
func New(service any) *State {
	return &State{service: service}
}

// Service returns the handle given to New.
func (s *State) Service() any {
	return s.service
}

// AppendTurn adds a turn to the end of the history.
func (s *State) AppendTurn(speaker Speaker, message string) error {
	if speaker == "" {
		return ErrEmptySpeaker
	}
	s.history = append(s.history, Turn{Speaker: speaker, Message: message})
	return nil
}

// Clear empties the history. It does not touch the pending slot.
func (s *State) Clear() {
	s.history = nil
}

// History returns a copy of the turns in order.
func (s *State) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Len is the number of turns recorded.
func (s *State) Len() int {
	return len(s.history)
}

// Stats counts all turns and the user's turns.
func (s *State) Stats() Stats {
	st := Stats{Total: len(s.history)}
	for _, t := range s.history {
		if t.Speaker == User {
			st.User++
		}
	}
	return st
}

// SetPendingInput stores text to be dispatched in place of the next direct
// input. A later call overwrites an unconsumed value.
func (s *State) SetPendingInput(text string) {
	s.pending = &text
}

// HasPendingInput reports whether the slot is occupied.
func (s *State) HasPendingInput() bool {
	return s.pending != nil
}

// ConsumePendingInput returns the pending value and clears the slot.
func (s *State) ConsumePendingInput() (string, bool) {
	if s.pending == nil {
		return "", false
	}
	v := *s.pending
	s.pending = nil
	return v, true
}

// Export renders the history as plain text: a timestamp header, a blank
// line, then "<speaker>: <message>" followed by a blank line for each turn.
func (s *State) Export(now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SecureGuard AI Conversation - %s\n\n", now.Format(TimestampLayout))
	for _, t := range s.history {
		fmt.Fprintf(&sb, "%s: %s\n\n", t.Speaker, t.Message)
	}
	return sb.String()
}

// ExportFilename is the file name matching an Export taken at now.
func ExportFilename(now time.Time) string {
	return "secureguard_chat_" + now.Format(TimestampLayout) + ".txt"
}
