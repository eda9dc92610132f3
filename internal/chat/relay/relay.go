package relay

import (
	"context"
	"fmt"

	"github.com/etutorng/imara-messaging/internal/chat/hub"
	"github.com/etutorng/imara-messaging/pkg/log"
	"github.com/etutorng/imara-messaging/pkg/pubsub"
)

// Relay forwards message broadcasts between gateway instances. Each
// instance publishes frames it originated and re-broadcasts frames
// from peers to its own local rooms.
type Relay struct {
	hub        *hub.Hub
	bus        pubsub.PubSub
	instanceID string
	cancel     context.CancelFunc
}

// NewRelay creates a new peer relay.
func NewRelay(h *hub.Hub, bus pubsub.PubSub, instanceID string) *Relay {
	return &Relay{
		hub:        h,
		bus:        bus,
		instanceID: instanceID,
	}
}

// Start subscribes to the peer channel pattern and begins forwarding.
func (r *Relay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	events, err := r.bus.SubscribePattern(ctx, pubsub.PatternSessionToPeers)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to peer channels: %w", err)
	}

	go r.consume(ctx, events)

	l := log.L()
	l.Info().Str("instance_id", r.instanceID).Msg("peer relay started")
	return nil
}

// Stop cancels the subscription.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Relay) consume(ctx context.Context, events <-chan *pubsub.Event) {
	l := log.L()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			// Frames we published ourselves were already fanned out
			// locally before publishing.
			if event.Origin == r.instanceID {
				continue
			}
			if event.Type != pubsub.EventMessageBroadcast {
				continue
			}

			var payload pubsub.MessageBroadcastPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				l.Warn().Err(err).Msg("failed to unmarshal relay payload")
				continue
			}

			r.hub.BroadcastRawToSession(payload.SessionID, payload.Data)
			l.Debug().
				Str(log.FieldSessionID, payload.SessionID).
				Str("origin", event.Origin).
				Msg("relayed peer broadcast")
		}
	}
}
