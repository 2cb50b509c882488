package service

import (
	"sync"
	"time"
)

const (
	defaultCircuitTrip     = 5
	defaultCircuitCooldown = 5 * time.Second
	circuitMaxCooldown     = 2 * time.Minute
	circuitResetAfter      = 5 * time.Minute
)

// breaker is a consecutive-failure circuit breaker per destination chat.
// Once a chat fails trip times in a row, new jobs for it are refused for a
// cooldown that doubles with every further failure. A success, or a quiet
// period of circuitResetAfter, closes the circuit.
type breaker struct {
	mu sync.Mutex
	m  map[int64]*circuitState
}

type circuitState struct {
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

func newBreaker() *breaker { return &breaker{m: map[int64]*circuitState{}} }

// settle applies the quiet-period reset. Callers hold mu.
func (st *circuitState) settle(now time.Time) {
	if !st.lastFailure.IsZero() && now.Sub(st.lastFailure) > circuitResetAfter {
		st.fails = 0
		st.openUntil = time.Time{}
	}
}

// open reports whether chat is refusing jobs, and until when.
func (b *breaker) open(now time.Time, chat int64, trip int) (bool, time.Time) {
	if trip < 0 {
		return false, time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.m[chat]
	if st == nil {
		return false, time.Time{}
	}
	st.settle(now)
	if !st.openUntil.IsZero() && now.Before(st.openUntil) {
		return true, st.openUntil
	}
	return false, time.Time{}
}

// record updates chat's state with one delivery outcome and reports
// whether this failure tripped (or extended) the circuit.
func (b *breaker) record(now time.Time, chat int64, trip int, cooldown time.Duration, err error) bool {
	if trip < 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.m[chat]
	if err == nil {
		if st != nil {
			delete(b.m, chat)
		}
		return false
	}
	if st == nil {
		st = &circuitState{}
		b.m[chat] = st
	}
	st.settle(now)
	st.fails++
	st.lastFailure = now
	if st.fails < trip {
		return false
	}

	d := cooldown
	for i := 0; i < st.fails-trip && d < circuitMaxCooldown; i++ {
		d *= 2
	}
	st.openUntil = now.Add(min(d, circuitMaxCooldown))
	return true
}

// snapshot counts tracked and currently open destinations.
func (b *breaker) snapshot(now time.Time) (tracked, open int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, st := range b.m {
		if !st.openUntil.IsZero() && now.Before(st.openUntil) {
			open++
		}
	}
	return len(b.m), open
}
