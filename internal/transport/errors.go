package transport

import "errors"

// Errors returned by the public operations. Match them with errors.Is; most
// are wrapped with call-specific context.
var (
	ErrNotAvailable   = errors.New("not connected to relay")
	ErrInvalidTarget  = errors.New("target is not a room ID")
	ErrBusy           = errors.New("already hosting or connected")
	ErrWrongRole      = errors.New("operation not valid in current role")
	ErrUnknownPeer    = errors.New("unknown peer handle")
	ErrInvalidChannel = errors.New("invalid channel ID")
	ErrAuthTimeout    = errors.New("failed to authenticate in time with relay")
	ErrRoomTimeout    = errors.New("failed to create room on relay in time")
	ErrNoRoom         = errors.New("no room is hosted")
	ErrPeerExists     = errors.New("peer already mapped")
)
