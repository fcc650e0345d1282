package dot1x

import (
	"fmt"
	"sync"
)

// PacketIdBinding records what a RADIUS packet id is currently bound to
// (§3): the supplicant MAC, the port it arrived on, and the request
// authenticator the Access-Request/Accounting-Request was sent with.
type PacketIdBinding struct {
	Supplicant MacAddress
	Port       PortID
	ReqAuth    [16]byte
}

// PacketIdAllocator holds the rolling 8-bit RADIUS id counter and the
// reverse map to supplicant identity and stored request authenticator
// (§4.5). allocate/resolve/release satisfy I2/I3: at most one request per
// id is outstanding, and allocate never returns a still-bound id.
//
// Uses the same mutex+map shape and crypto/rand call for the authenticator
// bytes as a discriminator allocator would, but linear increment-and-skip
// replaces random-retry because an 8-bit space is small enough that
// collision probing would thrash under load while a rolling counter never
// revisits a bound id until it must.
type PacketIdAllocator struct {
	mu       sync.Mutex
	next     uint8
	bindings map[uint8]PacketIdBinding
}

// NewPacketIdAllocator creates an empty allocator.
func NewPacketIdAllocator() *PacketIdAllocator {
	return &PacketIdAllocator{bindings: make(map[uint8]PacketIdBinding)}
}

// Allocate produces a fresh RADIUS packet id and a 16-byte cryptographically
// random request authenticator, binding id to (supplicant, port, auth).
// Returns a KindResource Error wrapping ErrIDExhausted if all 256 ids are
// bound (§4.5, §7): the caller retries after an eviction.
func (a *PacketIdAllocator) Allocate(supplicant MacAddress, port PortID) (uint8, [16]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.bindings) >= 256 {
		return 0, [16]byte{}, Classify(KindResource, fmt.Errorf("allocate packet id: %w", ErrIDExhausted))
	}

	start := a.next
	id := start
	for {
		if _, bound := a.bindings[id]; !bound {
			break
		}
		id++
		if id == start {
			return 0, [16]byte{}, Classify(KindResource, fmt.Errorf("allocate packet id: %w", ErrIDExhausted))
		}
	}
	a.next = id + 1

	auth, err := BuildRandomAuthenticator()
	if err != nil {
		return 0, [16]byte{}, err
	}

	a.bindings[id] = PacketIdBinding{Supplicant: supplicant, Port: port, ReqAuth: auth}
	return id, auth, nil
}

// Resolve returns the binding for id, if any is currently outstanding.
func (a *PacketIdAllocator) Resolve(id uint8) (PacketIdBinding, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.bindings[id]
	return b, ok
}

// Release frees id, called on a successful response or on timeout eviction.
// Releasing an id that is not bound is a no-op.
func (a *PacketIdAllocator) Release(id uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.bindings, id)
}

// IsBound reports whether id is currently allocated.
func (a *PacketIdAllocator) IsBound(id uint8) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.bindings[id]
	return ok
}
