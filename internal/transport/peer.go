package transport

import (
	"fmt"
	"slices"
)

// PeerHandle is the local identifier of a remote peer while hosting. The
// host itself implicitly occupies 0, so handles start at 1.
type PeerHandle int

// peerMap is the bijection between relay-assigned peer IDs and local
// handles. Both directions are kept in lockstep.
type peerMap struct {
	byRelay  map[uint16]PeerHandle
	byHandle map[PeerHandle]uint16
}

func newPeerMap() *peerMap {
	return &peerMap{
		byRelay:  make(map[uint16]PeerHandle),
		byHandle: make(map[PeerHandle]uint16),
	}
}

// Add maps relayID to h. It fails if either side is already mapped.
func (m *peerMap) Add(relayID uint16, h PeerHandle) error {
	if existing, ok := m.byRelay[relayID]; ok {
		return fmt.Errorf("%w: relay ID %d is handle %d", ErrPeerExists, relayID, existing)
	}
	if existing, ok := m.byHandle[h]; ok {
		return fmt.Errorf("%w: handle %d is relay ID %d", ErrPeerExists, h, existing)
	}
	m.byRelay[relayID] = h
	m.byHandle[h] = relayID
	return nil
}

func (m *peerMap) Handle(relayID uint16) (PeerHandle, bool) {
	h, ok := m.byRelay[relayID]
	return h, ok
}

func (m *peerMap) RelayID(h PeerHandle) (uint16, bool) {
	id, ok := m.byHandle[h]
	return id, ok
}

// RemoveByRelayID drops the mapping for relayID and returns its handle.
func (m *peerMap) RemoveByRelayID(relayID uint16) (PeerHandle, bool) {
	h, ok := m.byRelay[relayID]
	if !ok {
		return 0, false
	}
	delete(m.byRelay, relayID)
	delete(m.byHandle, h)
	return h, true
}

// Handles returns every mapped handle in ascending order.
func (m *peerMap) Handles() []PeerHandle {
	var hs []PeerHandle
	for h := range m.byHandle {
		hs = append(hs, h)
	}
	slices.Sort(hs)
	return hs
}

func (m *peerMap) Len() int { return len(m.byRelay) }

func (m *peerMap) Clear() {
	clear(m.byRelay)
	clear(m.byHandle)
}
