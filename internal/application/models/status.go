package models

// Status is the application lifecycle state.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusPending     Status = "PENDING"
	StatusProcessing  Status = "PROCESSING"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusCancelled   Status = "CANCELLED"
)

// transitions lists the forward moves out of each state. Terminal states
// have none.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusPending, StatusCancelled},
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusApproved, StatusRejected, StatusUnderReview, StatusCancelled},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusProcessing, StatusApproved,
		StatusRejected, StatusUnderReview, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
