package pubsub

import "testing"

func TestNewPubSubNoneDriver(t *testing.T) {
	// Single-instance gateways run without a bus; "none" must not try
	// to reach Redis or Kafka.
	bus, err := NewPubSub(Config{Driver: "none"})
	if err != nil {
		t.Fatalf("NewPubSub: %v", err)
	}
	if bus != nil {
		t.Errorf("bus = %v, want nil", bus)
	}
}

func TestSessionToPeersChannel(t *testing.T) {
	if got := SessionToPeersChannel("sess-1"); got != "chat:session:sess-1:to_peers" {
		t.Errorf("SessionToPeersChannel = %q", got)
	}
}
