package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
)

func TestRecord(t *testing.T) {
	event := models.Event{
		Type:       models.EventUserSoftDeleted,
		UserID:     id.NewUserID(),
		Provider:   identity.ProviderNaver,
		OccurredAt: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		RequestID:  "req-9",
	}

	rec, err := Record("users.lifecycle", event)
	require.NoError(t, err)

	assert.Equal(t, "users.lifecycle", rec.Topic)
	assert.Equal(t, event.UserID.String(), string(rec.Key))
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "event-type", rec.Headers[0].Key)
	assert.Equal(t, "user.soft_deleted", string(rec.Headers[0].Value))
	assert.True(t, event.OccurredAt.Equal(rec.Timestamp))
	assert.JSONEq(t, `{
		"type": "user.soft_deleted",
		"userId": "`+event.UserID.String()+`",
		"provider": "NAVER",
		"occurredAt": "2024-02-03T04:05:06Z",
		"requestId": "req-9"
	}`, string(rec.Value))

	decoded, err := Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, event.UserID, decoded.UserID)
	assert.Equal(t, event.Type, decoded.Type)
}

func TestNewKafkaValidation(t *testing.T) {
	_, err := NewKafka(nil, "users.lifecycle")
	assert.Error(t, err)

	_, err = NewKafka([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	k, err := NewKafka([]string{"localhost:9092"}, "users.lifecycle", WithTimeout(time.Second), WithTimeout(0))
	require.NoError(t, err)
	defer k.Close()

	assert.Equal(t, time.Second, k.timeout, "non-positive timeouts are ignored")
	assert.Equal(t, "users.lifecycle", k.topic)
}
