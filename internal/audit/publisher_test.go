package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "creditengine/pkg/domain"
	"creditengine/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error { return errors.New("disk full") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decisionEvent() Event {
	return Event{
		Type:          EventDecisionMade,
		UserID:        id.UserID(id.NewApplicationID()),
		ApplicationID: id.NewApplicationID(),
		DecisionID:    id.NewDecisionID(),
		Outcome:       "APPROVED",
		CreditScore:   751,
		Confidence:    0.91,
		Source:        "model",
	}
}

func TestEmit_FillsDefaultsFromContext(t *testing.T) {
	outbox := NewInMemoryOutbox()
	p := NewPublisher(outbox, WithLogger(quietLogger()))
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-42")

	event := decisionEvent()
	require.NoError(t, p.Emit(ctx, event))

	entries := outbox.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EventDecisionMade, entries[0].EventType)
	assert.Equal(t, event.ApplicationID.String(), entries[0].AggregateID)
	assert.Equal(t, now, entries[0].CreatedAt)

	var body map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Payload, &body))
	assert.Equal(t, "decision_made", body["type"])
	assert.Equal(t, "req-42", body["request_id"])
	assert.Equal(t, float64(751), body["credit_score"])
	assert.Equal(t, event.DecisionID.String(), body["decision_id"])
	assert.NotEmpty(t, body["id"])
}

func TestEmit_RequiresIdentifiers(t *testing.T) {
	p := NewPublisher(NewInMemoryOutbox(), WithLogger(quietLogger()))

	missingType := decisionEvent()
	missingType.Type = ""
	assert.Error(t, p.Emit(context.Background(), missingType))

	missingUser := decisionEvent()
	missingUser.UserID = id.UserID{}
	assert.Error(t, p.Emit(context.Background(), missingUser))

	missingApp := decisionEvent()
	missingApp.ApplicationID = id.ApplicationID{}
	assert.Error(t, p.Emit(context.Background(), missingApp))
}

func TestEmit_FailClosed(t *testing.T) {
	p := NewPublisher(failingStore{}, WithLogger(quietLogger()))
	err := p.Emit(context.Background(), decisionEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPayload_OmitsDecisionForNonDecisionEvents(t *testing.T) {
	outbox := NewInMemoryOutbox()
	p := NewPublisher(outbox, WithLogger(quietLogger()))
	event := decisionEvent()
	event.Type = EventApplicationCancelled
	event.DecisionID = id.DecisionID{}

	require.NoError(t, p.Emit(context.Background(), event))

	var body map[string]any
	require.NoError(t, json.Unmarshal(outbox.Entries()[0].Payload, &body))
	assert.NotContains(t, body, "decision_id")
}
