// Package events defines the closed set of execution lifecycle events and
// their wire shape. The event contract is transport-agnostic: the same Event
// values are appended to the per-execution log, replayed to late subscribers
// and serialized over SSE.
package events

import (
	"time"
)

// EventType identifies one of the lifecycle event kinds.
type EventType string

const (
	ExecutionStarted   EventType = "execution_started"
	StepStarted        EventType = "step_started"
	StepCompleted      EventType = "step_completed"
	ExecutionCompleted EventType = "execution_completed"
	ExecutionFailed    EventType = "execution_failed"
	ExecutionStopped   EventType = "execution_stopped"
	Heartbeat          EventType = "heartbeat"
)

// IsTerminal reports whether the event type ends an execution's stream.
func (t EventType) IsTerminal() bool {
	switch t {
	case ExecutionCompleted, ExecutionFailed, ExecutionStopped:
		return true
	}
	return false
}

// Event is a single entry in an execution's ordered event stream. Seq is
// assigned by the execution record at publish time and is strictly
// increasing per execution. Heartbeats are synthesized by the stream writer
// and never carry a Seq.
type Event struct {
	Seq       int       `json:"seq,omitempty"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// step_started / step_completed
	StepID      string `json:"step_id,omitempty"`
	StepType    string `json:"step_type,omitempty"`
	Description string `json:"description,omitempty"`
	Success     *bool  `json:"success,omitempty"`
	Result      string `json:"result,omitempty"`

	// execution_failed / step_completed failures
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`

	// execution_started / terminal events
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewExecutionStarted builds the first event of every execution.
func NewExecutionStarted(startedAt time.Time) Event {
	return Event{Type: ExecutionStarted, StartedAt: &startedAt}
}

// NewStepStarted announces that the interpreter fetched a step.
func NewStepStarted(stepID, stepType, description string) Event {
	return Event{
		Type:        StepStarted,
		StepID:      stepID,
		StepType:    stepType,
		Description: description,
	}
}

// NewStepCompleted closes a step. result is only meaningful when success is
// true; errMsg only when it is false.
func NewStepCompleted(stepID string, success bool, result, errMsg string) Event {
	return Event{
		Type:    StepCompleted,
		StepID:  stepID,
		Success: &success,
		Result:  result,
		Error:   errMsg,
	}
}

// NewExecutionCompleted carries the final result of a successful run.
func NewExecutionCompleted(result string, finishedAt time.Time) Event {
	return Event{Type: ExecutionCompleted, Result: result, FinishedAt: &finishedAt}
}

// NewExecutionFailed carries the stable failure kind in Reason and the
// human-readable detail in Error.
func NewExecutionFailed(reason, errMsg string, finishedAt time.Time) Event {
	return Event{Type: ExecutionFailed, Reason: reason, Error: errMsg, FinishedAt: &finishedAt}
}

// NewExecutionStopped marks a cancellation-driven exit.
func NewExecutionStopped(finishedAt time.Time) Event {
	return Event{Type: ExecutionStopped, FinishedAt: &finishedAt}
}

// NewHeartbeat keeps idle streams alive. Heartbeats are not logged.
func NewHeartbeat() Event {
	return Event{Type: Heartbeat, Timestamp: time.Now().UTC()}
}
