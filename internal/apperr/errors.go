// Package apperr defines the error taxonomy shared by the narrative engine.
//
// Hard failures are returned as errors that match one of the sentinels below
// via errors.Is. Continuity advisories (time, space, possession anomalies) are
// never errors; they are returned as data by the continuity package.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrCycleDetected     = errors.New("cycle detected")
	ErrUnresolvableOrder = errors.New("unresolvable order")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPrematureReveal   = errors.New("premature reveal")
	ErrKnowledgeLeak     = errors.New("knowledge leak")
)

// CycleError reports an edge that was rejected because it would close a cycle.
// The graph is left exactly as it was before the attempted insertion.
type CycleError struct {
	Source string
	Target string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: edge %s -> %s would close a cycle", e.Source, e.Target)
}

func (e *CycleError) Is(target error) bool { return target == ErrCycleDetected }

// OrderError reports nodes that could not be placed in a topological order.
type OrderError struct {
	Remaining []string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("unresolvable order: %d node(s) left in a cycle: %s",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}

func (e *OrderError) Is(target error) bool { return target == ErrUnresolvableOrder }

// TransitionError reports a lifecycle move the state machine does not allow.
type TransitionError struct {
	Element string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: element %s cannot move from %s to %s", e.Element, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// PrematureRevealError reports a reveal attempted at a unit other than the
// planned one without an explicit override.
type PrematureRevealError struct {
	Element string
	Planned string
	Got     string
}

func (e *PrematureRevealError) Error() string {
	planned := e.Planned
	if planned == "" {
		planned = "<unassigned>"
	}
	return fmt.Sprintf("premature reveal: element %s is planned for %s, not %s (override required)",
		e.Element, planned, e.Got)
}

func (e *PrematureRevealError) Is(target error) bool { return target == ErrPrematureReveal }

// Leak is a single fact an entity would use before knowing it.
type Leak struct {
	Entity string `json:"entity"`
	Fact   string `json:"fact"`
}

// KnowledgeLeakError lists every leak found during one validation pass.
type KnowledgeLeakError struct {
	Unit  string
	Leaks []Leak
}

func (e *KnowledgeLeakError) Error() string {
	parts := make([]string, 0, len(e.Leaks))
	for _, l := range e.Leaks {
		parts = append(parts, fmt.Sprintf("%s uses %s", l.Entity, l.Fact))
	}
	return fmt.Sprintf("knowledge leak in unit %s: %s", e.Unit, strings.Join(parts, "; "))
}

func (e *KnowledgeLeakError) Is(target error) bool { return target == ErrKnowledgeLeak }

// NotFound wraps ErrNotFound with a kind and identifier.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// Invalid wraps ErrInvalidArgument with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
