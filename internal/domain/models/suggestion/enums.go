package suggestion

// Priority is the agent-assigned urgency of a suggestion.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// AllPriorities lists every priority; weight tables are checked against it.
var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	for _, known := range AllPriorities {
		if p == known {
			return true
		}
	}
	return false
}

// Type identifies which reviewer agent produced a suggestion.
type Type string

const (
	TypeLLM      Type = "llm"
	TypeBrand    Type = "brand"
	TypeFact     Type = "fact"
	TypeGrammar  Type = "grammar"
	TypeSpelling Type = "spelling"
)

// AllTypes lists every suggestion type.
var AllTypes = []Type{TypeLLM, TypeBrand, TypeFact, TypeGrammar, TypeSpelling}

// Valid reports whether t is a known suggestion type.
func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a suggestion.
//
// pending is the only non-terminal state; every other state is reached
// exactly once and never left.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusSkipped  Status = "skipped"
	StatusDeleted  Status = "deleted"
)

// AllStatuses lists every suggestion status.
var AllStatuses = []Status{StatusPending, StatusAccepted, StatusRejected, StatusSkipped, StatusDeleted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// UserSettable reports whether a user may move a suggestion to s.
// skipped is reserved for revalidation.
func (s Status) UserSettable() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusDeleted
}

// CanTransitionTo reports whether a suggestion in state s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next != StatusPending && next.Valid()
}

// Status reasons recorded when the system (not a user) closes a suggestion.
const (
	ReasonAnchorMissing   = "anchor_missing"
	ReasonContextMismatch = "context_mismatch"
	ReasonPublished       = "document_published"
)
