package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// BuildEvent announces a completed build pass
type BuildEvent struct {
	BuildID   string    `json:"buildId"`
	CreatedAt time.Time `json:"createdAt"`
	Entries   int       `json:"entries"`
	Islands   []string  `json:"islands"`
	Warnings  int       `json:"warnings"`
	Errors    int       `json:"errors"`
}

// PublishBuildEvent encodes and publishes event on channel
func PublishBuildEvent(ctx context.Context, ps PubSub, channel string, event BuildEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode build event: %w", err)
	}
	if err := ps.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("failed to publish build event: %w", err)
	}
	return nil
}

// SubscribeBuildEvents decodes build events published on channel. Malformed
// payloads are logged and skipped.
func SubscribeBuildEvents(ctx context.Context, ps PubSub, channel string) (<-chan BuildEvent, error) {
	messages, err := ps.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}

	events := make(chan BuildEvent, subscriberBuffer)
	go func() {
		defer close(events)
		for msg := range messages {
			var event BuildEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("Ignoring malformed build event")
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
