// Package config holds the constructor-time tunables shared by the core
// stack. None of it is persisted; the stack is purely in-memory.
package config

import "time"

const (
	// MaxPayloadSize caps the payload carried by a single TCP segment.
	MaxPayloadSize = 1452

	// MaxRetxAttempts is not enforced anywhere: the sender retries forever
	// and the CLI harness does not read it.
	MaxRetxAttempts = 8

	// ArpCacheTTLMillis is how long a learned IP→MAC binding stays valid.
	ArpCacheTTLMillis uint64 = 30000

	// PendingArpTTLMillis is how long a NetworkInterface suppresses
	// duplicate ARP requests for the same unresolved IP.
	PendingArpTTLMillis uint64 = 5000

	// DefaultInitialRTOMillis is the default initial retransmission timeout
	// for a TCPSender, absent an explicit override.
	DefaultInitialRTOMillis uint64 = 1000
)

// DefaultInitialRTO is DefaultInitialRTOMillis expressed as a time.Duration,
// for callers that drive ticks off a real clock.
const DefaultInitialRTO = time.Duration(DefaultInitialRTOMillis) * time.Millisecond

// StreamCapacity bundles the byte-stream capacities used by a sender and
// receiver pair. Both halves of a connection need not agree on capacity.
type StreamCapacity struct {
	Send uint64
	Recv uint64
}

// DefaultStreamCapacity is a reasonable default for demos and tests.
var DefaultStreamCapacity = StreamCapacity{Send: 64000, Recv: 64000}
