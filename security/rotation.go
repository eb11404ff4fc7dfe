package security

import "time"

// KeyRotationWindow bounds when a retired key may still open sealed values.
// A zero bound is open ended.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	at = at.UTC()
	started := w.NotBefore.IsZero() || !at.Before(w.NotBefore)
	ended := !w.NotAfter.IsZero() && at.After(w.NotAfter)
	return started && !ended
}
