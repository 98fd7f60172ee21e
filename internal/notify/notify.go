// Package notify publishes registration events on a watermill publisher.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/logging"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
)

// TopicRegistrationCreated carries RegistrationCreated payloads.
const TopicRegistrationCreated = "registration.created"

// RegistrationCreated is the message body published after a registration commits.
type RegistrationCreated struct {
	RegistrationID string                   `json:"registration_id"`
	EventID        string                   `json:"event_id"`
	IdentityID     string                   `json:"identity_id"`
	Email          string                   `json:"email"`
	Status         model.RegistrationStatus `json:"status"`
	ArtifactRef    string                   `json:"artifact_ref"`
	CreatedAt      time.Time                `json:"created_at"`
}

// Publisher turns committed registrations into messages.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher constructs a Publisher on top of pub.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// RegistrationCreated publishes reg on TopicRegistrationCreated.
func (p *Publisher) RegistrationCreated(ctx context.Context, reg *model.Registration) error {
	data, err := json.Marshal(RegistrationCreated{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		IdentityID:     reg.IdentityID,
		Email:          reg.Email,
		Status:         reg.Status,
		ArtifactRef:    reg.ArtifactRef,
		CreatedAt:      reg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal registration event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_id", reg.EventID)
	msg.Metadata.Set("registration_id", reg.ID)
	if rid := logging.RequestIDFromContext(ctx); rid != "" {
		msg.Metadata.Set("request_id", rid)
	}

	if err := p.pub.Publish(TopicRegistrationCreated, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicRegistrationCreated, err)
	}
	return nil
}

// NewInProcess returns an in-memory pub/sub. Publish does not block on slow subscribers.
func NewInProcess() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, NewLogger())
}

// Decode parses a RegistrationCreated message.
func Decode(msg *message.Message) (RegistrationCreated, error) {
	var ev RegistrationCreated
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode %s: %w", TopicRegistrationCreated, err)
	}
	return ev, nil
}

// Consume subscribes to TopicRegistrationCreated and hands each message to
// handle on a background goroutine until ctx ends. Messages handle fails on are nacked.
func Consume(ctx context.Context, sub message.Subscriber, handle func(context.Context, RegistrationCreated) error) error {
	messages, err := sub.Subscribe(ctx, TopicRegistrationCreated)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicRegistrationCreated, err)
	}
	go func() {
		for msg := range messages {
			ev, err := Decode(msg)
			if err == nil {
				err = handle(msg.Context(), ev)
			}
			if err != nil {
				logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("registration event not handled")
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

// LogRegistration is a Consume handler that writes an audit line per registration.
func LogRegistration(_ context.Context, ev RegistrationCreated) error {
	logging.Info().
		Str("registration_id", ev.RegistrationID).
		Str("event_id", ev.EventID).
		Str("identity", ev.IdentityID).
		Msg("registration created")
	return nil
}
