package audit

import (
	"time"

	"github.com/google/uuid"

	id "creditengine/pkg/domain"
)

// EventType names a compliance-relevant action.
type EventType string

const (
	EventDecisionMade         EventType = "decision_made"
	EventApplicationCancelled EventType = "application_cancelled"
	EventApplicationDeleted   EventType = "application_deleted"
)

// Event is a compliance audit event. Decision fields are zero for events
// that do not concern a decision.
type Event struct {
	ID            uuid.UUID
	Type          EventType
	Timestamp     time.Time
	UserID        id.UserID
	ApplicationID id.ApplicationID
	DecisionID    id.DecisionID
	Outcome       string
	CreditScore   int
	Confidence    float64
	Source        string
	Reason        string
	RequestID     string
}

// payload is the JSON published to Kafka.
type payload struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Timestamp     string  `json:"timestamp"`
	UserID        string  `json:"user_id"`
	ApplicationID string  `json:"application_id"`
	DecisionID    string  `json:"decision_id,omitempty"`
	Outcome       string  `json:"outcome,omitempty"`
	CreditScore   int     `json:"credit_score,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	Source        string  `json:"source,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	RequestID     string  `json:"request_id,omitempty"`
}

func (e Event) payload() payload {
	p := payload{
		ID:            e.ID.String(),
		Type:          string(e.Type),
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:        e.UserID.String(),
		ApplicationID: e.ApplicationID.String(),
		Outcome:       e.Outcome,
		CreditScore:   e.CreditScore,
		Confidence:    e.Confidence,
		Source:        e.Source,
		Reason:        e.Reason,
		RequestID:     e.RequestID,
	}
	if !e.DecisionID.IsNil() {
		p.DecisionID = e.DecisionID.String()
	}
	return p
}

// OutboxEntry is a serialized event waiting to be relayed.
type OutboxEntry struct {
	ID          int64
	EventID     uuid.UUID
	AggregateID string
	EventType   EventType
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}
