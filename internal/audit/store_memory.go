package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// InMemoryOutbox is the outbox used when no database is configured.
type InMemoryOutbox struct {
	mu      sync.Mutex
	nextID  int64
	entries []OutboxEntry
}

func NewInMemoryOutbox() *InMemoryOutbox {
	return &InMemoryOutbox{}
}

func (s *InMemoryOutbox) Append(_ context.Context, event Event) error {
	body, err := json.Marshal(event.payload())
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.entries = append(s.entries, OutboxEntry{
		ID:          s.nextID,
		EventID:     event.ID,
		AggregateID: event.ApplicationID.String(),
		EventType:   event.Type,
		Payload:     body,
		CreatedAt:   event.Timestamp,
	})
	return nil
}

func (s *InMemoryOutbox) Pending(_ context.Context, limit int) ([]OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEntry
	for _, e := range s.entries {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryOutbox) MarkPublished(_ context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for i := range s.entries {
		if marked[s.entries[i].ID] && s.entries[i].PublishedAt == nil {
			published := at
			s.entries[i].PublishedAt = &published
		}
	}
	return nil
}

// Entries returns a copy of every entry, published or not.
func (s *InMemoryOutbox) Entries() []OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutboxEntry(nil), s.entries...)
}
