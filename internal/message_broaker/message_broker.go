package message_broaker

import "context"

// MessageBroker moves opaque payloads from hexcron to the rest of the game.
// Event notifications and backup requests both travel through it.
type MessageBroker interface {
	Publish(ctx context.Context, queue string, message []byte) error
	Close() error
}
