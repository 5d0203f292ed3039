//go:build integration

package audit_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"creditengine/internal/audit"
	id "creditengine/pkg/domain"
	"creditengine/pkg/platform/tx"
	"creditengine/pkg/testutil/containers"
)

type OutboxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	outbox   *audit.PostgresOutbox
}

func TestOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.outbox = audit.NewPostgresOutbox(s.postgres.DB)
}

func (s *OutboxSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_outbox"))
}

func newEvent() audit.Event {
	return audit.Event{
		ID:            uuid.New(),
		Type:          audit.EventDecisionMade,
		Timestamp:     time.Now().UTC(),
		UserID:        id.UserID(uuid.New()),
		ApplicationID: id.NewApplicationID(),
		DecisionID:    id.NewDecisionID(),
		Outcome:       "REJECTED",
		CreditScore:   568,
		Confidence:    0.6,
		Source:        "composite_fallback",
	}
}

func (s *OutboxSuite) TestAppendRollsBackWithTransaction() {
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := tx.Run(ctx, s.postgres.DB, nil, func(ctx context.Context) error {
		s.Require().NoError(s.outbox.Append(ctx, newEvent()))
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	pending, err := s.outbox.Pending(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *OutboxSuite) TestPendingAndMarkPublished() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.outbox.Append(ctx, newEvent()))
	}

	pending, err := s.outbox.Pending(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Less(pending[0].ID, pending[1].ID)

	s.Require().NoError(s.outbox.MarkPublished(ctx, []int64{pending[0].ID, pending[1].ID}, time.Now()))

	rest, err := s.outbox.Pending(ctx, 10)
	s.Require().NoError(err)
	s.Len(rest, 1)

	var publishedAt sql.NullTime
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT published_at FROM audit_outbox WHERE id = $1`, pending[0].ID).Scan(&publishedAt))
	s.True(publishedAt.Valid)
}

func (s *OutboxSuite) TestRelayToKafka() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	broker := containers.GetManager().GetRedpanda(s.T()).Broker
	topic := "credit.audit." + uuid.NewString()

	producer, err := audit.NewKafkaProducer([]string{broker}, topic)
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(producer.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(producer.EnsureTopic(ctx, 1, 1), "ensuring an existing topic is a no-op")

	event := newEvent()
	s.Require().NoError(s.outbox.Append(ctx, event))

	n, err := audit.NewRelay(s.outbox, producer).RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(event.ApplicationID.String(), string(records[0].Key))

	var body map[string]any
	s.Require().NoError(json.Unmarshal(records[0].Value, &body))
	s.Equal("decision_made", body["type"])
	s.Equal(event.DecisionID.String(), body["decision_id"])
}
