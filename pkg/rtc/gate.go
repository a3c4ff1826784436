package rtc

import "sync/atomic"

// SendGate decides whether captured audio may be sent right now. Chunks that
// arrive while the gate is shut are dropped, not buffered: stale audio is
// not worth sending late.
type SendGate interface {
	// SetOpen records whether the outbound transport is open.
	SetOpen(open bool)

	// ShouldDropAudio returns true if a captured chunk must be discarded.
	ShouldDropAudio() bool
}

// NewSendGate creates a SendGate that starts shut.
func NewSendGate() SendGate {
	return &atomicGate{}
}

type atomicGate struct {
	open atomic.Bool
}

func (g *atomicGate) SetOpen(open bool) {
	g.open.Store(open)
}

func (g *atomicGate) ShouldDropAudio() bool {
	return !g.open.Load()
}
