package store

import (
	"context"
	"slices"
	"sync"

	"creditengine/internal/application/models"
	"creditengine/internal/decision"
	"creditengine/internal/fairness"
	"creditengine/internal/scoring"
	id "creditengine/pkg/domain"
	"creditengine/pkg/platform/sentinel"
)

// InMemoryStore keeps everything behind one mutex, so Execute and
// AttachDecision are single-writer read-modify-write operations.
type InMemoryStore struct {
	mu            sync.RWMutex
	apps          map[id.ApplicationID]*models.Application
	verifications map[id.ApplicationID][]models.IdentityVerification
	scores        map[id.ApplicationID][]scoring.DocumentScore
	decisions     map[id.ApplicationID]decision.Decision
	fairness      map[id.DecisionID]fairness.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		apps:          make(map[id.ApplicationID]*models.Application),
		verifications: make(map[id.ApplicationID][]models.IdentityVerification),
		scores:        make(map[id.ApplicationID][]scoring.DocumentScore),
		decisions:     make(map[id.ApplicationID]decision.Decision),
		fairness:      make(map[id.DecisionID]fairness.Record),
	}
}

// RunInTx runs fn directly; the in-memory store has no transactions.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *InMemoryStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, other := range s.apps {
		if other.Number == app.Number && other.Version == app.Version {
			return sentinel.ErrConflict
		}
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// ListByUser returns the user's applications, newest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Application
	for _, app := range s.apps {
		if app.UserID == userID {
			out = append(out, app.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Application) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Execute applies fn to a copy of the application and stores the copy only
// if fn succeeds.
func (s *InMemoryStore) Execute(_ context.Context, appID id.ApplicationID, fn func(*models.Application) error) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.apps[appID] = next
	return next.Clone(), nil
}

// AttachDecision runs fn on the application and, if it succeeds, stores the
// decision, its fairness record and the updated application together.
func (s *InMemoryStore) AttachDecision(_ context.Context, appID id.ApplicationID, d decision.Decision, rec *fairness.Record, fn func(*models.Application) error) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if _, exists := s.decisions[appID]; exists {
		return nil, sentinel.ErrConflict
	}
	s.decisions[appID] = cloneDecision(d)
	if rec != nil {
		s.fairness[d.ID] = *rec
	}
	s.apps[appID] = next
	return next.Clone(), nil
}

func (s *InMemoryStore) SaveVerification(_ context.Context, v models.IdentityVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[v.ApplicationID]; !ok {
		return sentinel.ErrNotFound
	}
	s.verifications[v.ApplicationID] = append(s.verifications[v.ApplicationID], v)
	return nil
}

func (s *InMemoryStore) ListVerifications(_ context.Context, appID id.ApplicationID) ([]models.IdentityVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.verifications[appID]), nil
}

func (s *InMemoryStore) SaveDocumentScores(_ context.Context, scores []scoring.DocumentScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range scores {
		if _, ok := s.apps[sc.ApplicationID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	for _, sc := range scores {
		s.scores[sc.ApplicationID] = append(s.scores[sc.ApplicationID], sc)
	}
	return nil
}

func (s *InMemoryStore) ListDocumentScores(_ context.Context, appID id.ApplicationID) ([]scoring.DocumentScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scores[appID]), nil
}

func (s *InMemoryStore) FindDecision(_ context.Context, appID id.ApplicationID) (models.DecisionDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[appID]
	if !ok {
		return models.DecisionDetails{}, sentinel.ErrNotFound
	}
	details := models.DecisionDetails{Decision: cloneDecision(d)}
	if rec, ok := s.fairness[d.ID]; ok {
		details.Fairness = &rec
	}
	return details, nil
}

// Delete removes the application and everything recorded about it.
func (s *InMemoryStore) Delete(_ context.Context, appID id.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[appID]; !ok {
		return sentinel.ErrNotFound
	}
	if d, ok := s.decisions[appID]; ok {
		delete(s.fairness, d.ID)
	}
	delete(s.decisions, appID)
	delete(s.scores, appID)
	delete(s.verifications, appID)
	delete(s.apps, appID)
	for _, other := range s.apps {
		if other.PreviousVersionID != nil && *other.PreviousVersionID == appID {
			other.PreviousVersionID = nil
		}
	}
	return nil
}

// ListFairnessPending returns decisions recorded without fairness metrics,
// oldest first.
func (s *InMemoryStore) ListFairnessPending(_ context.Context, limit int) ([]decision.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []decision.Decision
	for _, d := range s.decisions {
		if d.FairnessUnavailable {
			out = append(out, cloneDecision(d))
		}
	}
	slices.SortFunc(out, func(a, b decision.Decision) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SaveFairnessRecord(_ context.Context, rec fairness.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for appID, d := range s.decisions {
		if d.ID != rec.DecisionID {
			continue
		}
		if _, exists := s.fairness[rec.DecisionID]; !exists {
			s.fairness[rec.DecisionID] = rec
		}
		d.FairnessUnavailable = false
		s.decisions[appID] = d
		return nil
	}
	return sentinel.ErrNotFound
}
