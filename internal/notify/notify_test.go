package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/logging"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
)

func TestRegistrationCreatedRoundTrip(t *testing.T) {
	pubsub := NewInProcess()
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan RegistrationCreated, 1)
	require.NoError(t, Consume(ctx, pubsub, func(_ context.Context, ev RegistrationCreated) error {
		received <- ev
		return nil
	}))

	reg := &model.Registration{
		ID: "reg-1", EventID: "evt-1", IdentityID: "alice", Email: "alice@example.com",
		Status: model.StatusPending, ArtifactRef: "http://files/alice/evt-1.png",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	pctx := logging.ContextWithRequestID(context.Background(), "req-42")
	require.NoError(t, NewPublisher(pubsub).RegistrationCreated(pctx, reg))

	select {
	case ev := <-received:
		assert.Equal(t, "reg-1", ev.RegistrationID)
		assert.Equal(t, "evt-1", ev.EventID)
		assert.Equal(t, "alice", ev.IdentityID)
		assert.Equal(t, model.StatusPending, ev.Status)
		assert.True(t, reg.CreatedAt.Equal(ev.CreatedAt))
	case <-time.After(2 * time.Second):
		t.Fatal("registration event not delivered")
	}
}

type closedPublisher struct{}

func (closedPublisher) Publish(string, ...*message.Message) error { return errors.New("publisher closed") }
func (closedPublisher) Close() error                              { return nil }

func TestRegistrationCreatedPublishError(t *testing.T) {
	err := NewPublisher(closedPublisher{}).RegistrationCreated(context.Background(), &model.Registration{ID: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), TopicRegistrationCreated)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(message.NewMessage("x", []byte("not json")))
	assert.Error(t, err)
}
