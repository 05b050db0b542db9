package pipeline

import (
	"fmt"
	"time"
)

// ChunkStatus is the execution state of one node chunk.
type ChunkStatus string

const (
	StatusNone      ChunkStatus = "none"      // Chunk never submitted
	StatusSubmitted ChunkStatus = "submitted" // Chunk queued for execution
	StatusRunning   ChunkStatus = "running"   // External process running
	StatusSuccess   ChunkStatus = "success"   // Process exited 0
	StatusError     ChunkStatus = "error"     // Process exited non-zero or failed to start
	StatusStopped   ChunkStatus = "stopped"   // Execution cancelled before completion
	StatusKilled    ChunkStatus = "killed"    // Process terminated by signal
)

// validTransitions maps from-state to allowed to-states.
var validTransitions = map[ChunkStatus]map[ChunkStatus]bool{
	StatusNone: {
		StatusSubmitted: true, // None → Submitted (chunk scheduled)
	},
	StatusSubmitted: {
		StatusRunning: true, // Submitted → Running (process started)
		StatusError:   true, // Submitted → Error (process failed to start)
		StatusStopped: true, // Submitted → Stopped (cancelled before start)
	},
	StatusRunning: {
		StatusSuccess: true, // Running → Success (exit 0)
		StatusError:   true, // Running → Error (non-zero exit)
		StatusStopped: true, // Running → Stopped (context cancelled)
		StatusKilled:  true, // Running → Killed (signal)
	},
	// Terminal states
	StatusSuccess: {},
	StatusError:   {},
	StatusStopped: {},
	StatusKilled:  {},
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to ChunkStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status allows no further transitions.
func IsTerminal(s ChunkStatus) bool {
	return s == StatusSuccess || s == StatusError || s == StatusStopped || s == StatusKilled
}

// ExecutionStatus records one chunk execution.
type ExecutionStatus struct {
	Status      ChunkStatus `json:"status"`
	CommandLine string      `json:"command_line,omitempty"`
	StartTime   time.Time   `json:"start_time,omitzero"`
	EndTime     time.Time   `json:"end_time,omitzero"`
	ReturnCode  int         `json:"return_code"`
	// BBoxApplied reports whether the bounding box watcher wrote a result
	// during this execution.
	BBoxApplied bool `json:"bbox_applied,omitempty"`
}

// Elapsed returns the wall time of the execution so far.
func (s *ExecutionStatus) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// transition moves the status forward, enforcing the FSM.
func (s *ExecutionStatus) transition(to ChunkStatus) error {
	from := s.Status
	if from == "" {
		from = StatusNone
	}
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	s.Status = to
	return nil
}
