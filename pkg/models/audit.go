package models

import (
	"encoding/json"
	"time"
)

// StepStatus represents the outcome of one workflow step.
type StepStatus string

const (
	// StepPass indicates the step succeeded.
	StepPass StepStatus = "pass"
	// StepFail indicates the step failed.
	StepFail StepStatus = "fail"
	// StepSkip indicates the step was not applicable.
	StepSkip StepStatus = "skip"
	// StepWarn indicates the step degraded to a warning.
	StepWarn StepStatus = "warn"
	// StepError indicates an error occurred while running the step.
	StepError StepStatus = "error"
)

// AuditEntry is one recorded workflow step.
type AuditEntry struct {
	Step    string     `json:"step" yaml:"step"`
	Status  StepStatus `json:"status" yaml:"status"`
	Message string     `json:"message,omitempty" yaml:"message,omitempty"`
	At      time.Time  `json:"at" yaml:"at"`
}

// AuditLog is an append-only record of workflow steps. It is kept purely for
// observability and never drives control flow.
type AuditLog struct {
	entries []AuditEntry
}

// Record appends an entry stamped with the current time.
func (l *AuditLog) Record(step string, status StepStatus, message string) {
	l.entries = append(l.entries, AuditEntry{
		Step:    step,
		Status:  status,
		Message: message,
		At:      time.Now(),
	})
}

// Merge appends other's entries, keeping their timestamps.
func (l *AuditLog) Merge(other AuditLog) {
	l.entries = append(l.entries, other.entries...)
}

// Entries returns a copy of the recorded entries in order.
func (l AuditLog) Entries() []AuditEntry {
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l AuditLog) Len() int {
	return len(l.entries)
}

// Last returns the most recent entry for step, if any.
func (l AuditLog) Last(step string) (AuditEntry, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Step == step {
			return l.entries[i], true
		}
	}
	return AuditEntry{}, false
}

// MarshalJSON renders the log as a plain array.
func (l AuditLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}

// UnmarshalJSON reads a plain array of entries.
func (l *AuditLog) UnmarshalJSON(data []byte) error {
	var entries []AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	l.entries = entries
	return nil
}

// MarshalYAML renders the log as a plain sequence.
func (l AuditLog) MarshalYAML() (any, error) {
	return l.Entries(), nil
}
