package pubsub

import "fmt"

// Channel naming conventions for the counselling messaging system.
const (
	// Gateway -> peer gateway channels, one per counselling session.
	ChannelSessionToPeers = "chat:session:%s:to_peers"

	// Pattern matching every session's peer channel.
	PatternSessionToPeers = "chat:session:*:to_peers"
)

// Event types carried on the peer channels.
const (
	EventMessageBroadcast = "message_broadcast"
)

// SessionToPeersChannel returns the peer-gateway channel for a session.
func SessionToPeersChannel(sessionID string) string {
	return fmt.Sprintf(ChannelSessionToPeers, sessionID)
}

// MessageBroadcastPayload is the fan-out payload relayed between gateway
// instances. Data is the wire-format receive_message frame, forwarded as-is
// so peer gateways re-broadcast exactly what the origin sent its own room.
type MessageBroadcastPayload struct {
	SessionID string `json:"session_id"`
	Data      []byte `json:"data"`
}
