package domain

import "time"

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// TargetState is a snapshot of the tracked status of one target.
type TargetState struct {
	TargetID             TargetID     `json:"target_id"`
	Status               Status       `json:"status"`
	ConsecutiveSuccesses int          `json:"consecutive_successes"`
	ConsecutiveFailures  int          `json:"consecutive_failures"`
	LastTransitionAt     time.Time    `json:"last_transition_at,omitempty"`
	LastResult           *ProbeResult `json:"last_result,omitempty"`
}

// TransitionEvent is emitted once per actual status change.
type TransitionEvent struct {
	TargetID TargetID    `json:"target_id"`
	Host     string      `json:"host"`
	Port     int         `json:"port,omitempty"`
	From     Status      `json:"from"`
	To       Status      `json:"to"`
	At       time.Time   `json:"at"`
	Trigger  ProbeResult `json:"trigger"`
}
