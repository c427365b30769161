package transport

import "slices"

// RoomInfo describes one listed room on the relay.
type RoomInfo struct {
	Name           string
	CurrentPlayers int
	MaxPlayers     int
	RoomID         uint16
	ExtraData      string
}

// directory caches the last room listing. Every listing replaces the
// previous one in full.
type directory struct {
	rooms []RoomInfo
}

func (d *directory) Replace(rooms []RoomInfo) {
	d.rooms = slices.Clone(rooms)
}

// Snapshot returns a copy of the cached rooms.
func (d *directory) Snapshot() []RoomInfo {
	return slices.Clone(d.rooms)
}
