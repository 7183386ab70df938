// Package session holds per-conversation state: the append-only turn log,
// the status state machine, and scratch memory. Persistence backends live in
// subpackages and the sqlite store; all of them satisfy Store.
package session

import (
	"errors"
	"fmt"
	"time"
)

// Status of a conversation session.
type Status string

const (
	StatusActive       Status = "active"
	StatusAwaitingUser Status = "awaiting_user_input"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further turns are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Turn roles. "agent" is the assistant's voice; it maps to the provider
// "assistant" role at the LLM boundary.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
	RoleTool  = "tool"
)

// Turn is one immutable entry in a session's conversation log.
type Turn struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Session is one staff conversation with the event assistant.
type Session struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Status     Status            `json:"status"`
	Turns      []Turn            `json:"turns"`
	Memory     map[string]string `json:"memory,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ArchivedAt *time.Time        `json:"archived_at,omitempty"`
}

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// TerminalStateError reports an append or transition attempted against a
// completed or failed session.
type TerminalStateError struct {
	SessionID string
	Status    Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("session %s is %s and accepts no further turns", e.SessionID, e.Status)
}

// IsTerminalState reports whether err is a TerminalStateError.
func IsTerminalState(err error) bool {
	var target *TerminalStateError
	return errors.As(err, &target)
}

// validTransitions encodes the status state machine. failed is reachable
// from any non-terminal state and is handled separately in CanTransition.
var validTransitions = map[Status][]Status{
	StatusActive:       {StatusAwaitingUser, StatusCompleted},
	StatusAwaitingUser: {StatusActive, StatusCompleted},
}

// CanTransition reports whether a status change is legal.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
