//go:build integration

package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	"github.com/changeuikim/vercel-kayce/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaSuite) TestPublishAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "users.lifecycle." + id.NewUserID().String()[:8]

	k, err := NewKafka(s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	defer k.Close()

	s.Require().NoError(k.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(k.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	event := models.Event{
		Type:       models.EventUserCreated,
		UserID:     id.NewUserID(),
		Provider:   identity.ProviderKakao,
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	s.Require().NoError(k.Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)

	got, err := Decode(records[0])
	s.Require().NoError(err)
	s.Equal(event.UserID, got.UserID)
	s.Equal(models.EventUserCreated, got.Type)
	s.Equal(event.UserID.String(), string(records[0].Key))
}
