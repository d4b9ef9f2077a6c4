// Package domain contains the core types shared across the edge-discovery
// pipeline: events, quotes, snapshots, opportunities, bet orders, and the
// error taxonomy. Types here carry no behaviour beyond invariant enforcement
// and derived values; all money and odds values are exact decimals.
package domain

import (
	"fmt"
	"time"
)

// EventStatus is the lifecycle state of a sport event.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventLive      EventStatus = "live"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventCancelled
}

// statusRank orders the monotonic path scheduled -> live -> completed.
// Cancelled is reachable from any non-terminal state.
var statusRank = map[EventStatus]int{
	EventScheduled: 0,
	EventLive:      1,
	EventCompleted: 2,
}

// CanTransition reports whether moving from s to next is a legal status
// transition. Transitions never move backwards, and terminal states are final.
func (s EventStatus) CanTransition(next EventStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == EventCancelled {
		return true
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	return okFrom && okTo && to > from
}

// Participant is one side of an event. The role tag is free-form
// ("home", "away", "player1", ...).
type Participant struct {
	ID   string
	Name string
	Role string
}

// SportEvent is created on first sighting from any provider. Status moves
// monotonically; once terminal only metadata enrichment is allowed.
type SportEvent struct {
	ID           string
	Sport        string
	Participants []Participant
	StartTime    time.Time
	Status       EventStatus
	Metadata     map[string]string
}

// WithStatus returns a copy of the event advanced to next, or an error if the
// transition is illegal.
func (e SportEvent) WithStatus(next EventStatus) (SportEvent, error) {
	if !e.Status.CanTransition(next) {
		return e, fmt.Errorf("event %s: illegal status transition %s -> %s", e.ID, e.Status, next)
	}
	e.Status = next
	return e, nil
}

// MergeMetadata returns a copy of the event with extra metadata folded in.
// Existing keys are kept; enrichment never overwrites earlier values.
func (e SportEvent) MergeMetadata(extra map[string]string) SportEvent {
	if len(extra) == 0 {
		return e
	}
	merged := make(map[string]string, len(e.Metadata)+len(extra))
	for k, v := range extra {
		merged[k] = v
	}
	for k, v := range e.Metadata {
		merged[k] = v
	}
	e.Metadata = merged
	return e
}
