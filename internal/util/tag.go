// Package util provides logging, traffic statistics and small helpers shared
// by the relay channel and transport packages.
package util

import "github.com/google/uuid"

// NewConnTag returns a short random tag identifying one relay connection in
// log output. Tags are for humans only and may collide.
func NewConnTag() string {
	return uuid.NewString()[:8]
}
