package draft

import (
	"fmt"
)

// Kind tags the two draft variants. Article and event drafts share the same
// phase-transition contract but run distinct state machines.
type Kind string

const (
	KindArticle Kind = "article"
	KindEvent   Kind = "event"
)

// Status is a closed enumeration per draft kind. A draft only advances
// forward through its sequence or terminates at rejected/published.
type Status string

const (
	// Article path.
	StatusCollected             Status = "collected"
	StatusShortlisted           Status = "shortlisted"
	StatusOutlineGenerated      Status = "outline_generated"
	StatusReadyForGeneration    Status = "ready_for_generation"
	StatusSelectedForGeneration Status = "selected_for_generation"
	StatusReadyForPublishing    Status = "ready_for_publishing"

	// Event path.
	StatusDetected  Status = "detected"
	StatusExtracted Status = "extracted"
	StatusValidated Status = "validated"

	// Terminal states shared by both paths.
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

var articleSequence = []Status{
	StatusCollected,
	StatusShortlisted,
	StatusOutlineGenerated,
	StatusReadyForGeneration,
	StatusSelectedForGeneration,
	StatusReadyForPublishing,
	StatusPublished,
}

var eventSequence = []Status{
	StatusDetected,
	StatusExtracted,
	StatusValidated,
	StatusPublished,
}

var transitions = map[Kind]map[Status]Status{
	KindArticle: buildTransitions(articleSequence),
	KindEvent:   buildTransitions(eventSequence),
}

func buildTransitions(sequence []Status) map[Status]Status {
	table := make(map[Status]Status, len(sequence)-1)
	for i := 0; i < len(sequence)-1; i++ {
		table[sequence[i]] = sequence[i+1]
	}
	return table
}

// ErrIllegalTransition reports an advance attempted from a state with no
// forward edge (terminal, rejected, or foreign to the kind).
type ErrIllegalTransition struct {
	Kind Kind
	From Status
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal transition for %s draft from status %q", e.Kind, e.From)
}

// Next returns the single forward step from status for the given kind.
func Next(kind Kind, from Status) (Status, error) {
	table, ok := transitions[kind]
	if !ok {
		return "", fmt.Errorf("unknown draft kind %q", kind)
	}
	next, ok := table[from]
	if !ok {
		return "", &ErrIllegalTransition{Kind: kind, From: from}
	}
	return next, nil
}

// Valid reports whether status belongs to the kind's state machine.
func Valid(kind Kind, status Status) bool {
	if status == StatusRejected {
		return true
	}
	for _, s := range sequence(kind) {
		if s == status {
			return true
		}
	}
	return false
}

// Terminal reports whether no phase may process the draft further.
func Terminal(status Status) bool {
	return status == StatusPublished || status == StatusRejected
}

// Rejectable reports whether a draft in status may move to rejected.
// Rejected is reachable from every non-terminal state.
func Rejectable(status Status) bool {
	return !Terminal(status)
}

// Parse validates a stored status string against the kind's enumeration.
func Parse(kind Kind, raw string) (Status, error) {
	status := Status(raw)
	if !Valid(kind, status) {
		return "", fmt.Errorf("invalid %s draft status %q", kind, raw)
	}
	return status, nil
}

func sequence(kind Kind) []Status {
	switch kind {
	case KindArticle:
		return articleSequence
	case KindEvent:
		return eventSequence
	default:
		return nil
	}
}

// Sequence returns a copy of the kind's forward status order.
func Sequence(kind Kind) []Status {
	src := sequence(kind)
	out := make([]Status, len(src))
	copy(out, src)
	return out
}
