package hub

import (
	"log"
	"sync"
)

// Peer is the outbound side of one registered connection. TrySend must never
// block: it reports false when the peer's queue is full or already closed so
// one stalled UI cannot stall the broadcast fan-out.
type Peer interface {
	TrySend(msg []byte) bool
	Close()
}

// Hub owns the connection registry: exactly one device slot and an unbounded
// set of UI peers. All registry access is serialized through a single mutex;
// broadcasts snapshot the UI set under the lock and send outside it.
type Hub struct {
	mu     sync.Mutex
	device Peer
	uis    map[Peer]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{uis: make(map[Peer]struct{})}
}

// SetDevice installs p as the current device, silently evicting any previous
// holder. The evicted peer is not closed, it is simply no longer addressed.
func (h *Hub) SetDevice(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.device != nil && h.device != p {
		log.Printf("[hub] device slot replaced")
	}
	h.device = p
}

// AddUI adds p to the UI set. Re-adding an existing member is a no-op.
func (h *Hub) AddUI(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uis[p] = struct{}{}
}

// Remove drops p from whichever slot it occupies. No other peer is affected.
func (h *Hub) Remove(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.device == p {
		h.device = nil
		log.Printf("[hub] device disconnected")
	}
	delete(h.uis, p)
}

// Device returns the current device peer, or nil when none is registered.
func (h *Hub) Device() Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.device
}

// Counts reports whether a device is connected and how many UIs are registered.
func (h *Hub) Counts() (deviceConnected bool, uiCount int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.device != nil, len(h.uis)
}

// Broadcast delivers msg to every registered UI, best effort. A peer whose
// send fails is removed and closed; delivery to the remaining peers proceeds
// independently.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	peers := make([]Peer, 0, len(h.uis))
	for p := range h.uis {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		if !p.TrySend(msg) {
			log.Printf("[hub] dropping unresponsive ui peer")
			h.Remove(p)
			p.Close()
		}
	}
}
