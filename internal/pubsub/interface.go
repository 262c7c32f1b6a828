// Package pubsub carries build notifications from the builder to running servers.
// The local backend serves a single process (islet watch + serve); the Redis
// backend lets a separate build job notify every server instance.
package pubsub

import (
	"context"
)

// AssetsChannel is the default channel build events are published on
const AssetsChannel = "islet:assets"

// subscriberBuffer is the per-subscription buffer; slow subscribers drop messages
const subscriberBuffer = 16

// Message is one payload delivered on a channel
type Message struct {
	Channel string `json:"channel"`
	Payload []byte `json:"payload"`
}

// PubSub fans payloads out to every subscriber of a channel. Implementations are
// safe for concurrent use.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe delivers messages until ctx is done or Close is called, then
	// closes the returned channel.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)

	Close() error
}
