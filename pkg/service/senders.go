package service

import (
	"slices"
	"sync"
	"time"
)

// senderTracker tracks connected clients and which of them hold the
// stack's presence beacon. Presence stays on while any holder remains.
type senderTracker struct {
	mu      sync.Mutex
	senders map[string]*senderState
}

type senderState struct {
	connected time.Time
	presence  bool
}

func newSenderTracker() *senderTracker {
	return &senderTracker{
		senders: make(map[string]*senderState),
	}
}

// Add registers a sender with the current time.
func (st *senderTracker) Add(sender string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.senders[sender] = &senderState{connected: time.Now()}
}

// Remove deregisters a sender. It reports whether the sender held presence
// and was the last holder. Safe to call on absent senders.
func (st *senderTracker) Remove(sender string) (lastHolder bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.senders[sender]
	if !ok {
		return false
	}
	delete(st.senders, sender)
	return s.presence && st.holders() == 0
}

// SetPresence records whether sender holds presence and returns the number
// of holders afterwards.
func (st *senderTracker) SetPresence(sender string, on bool) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.senders[sender]; ok {
		s.presence = on
	}
	return st.holders()
}

// Connected reports whether sender is connected.
func (st *senderTracker) Connected(sender string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.senders[sender]
	return ok
}

// Senders returns the connected senders, oldest first.
func (st *senderTracker) Senders() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]string, 0, len(st.senders))
	for s := range st.senders {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b string) int {
		return st.senders[a].connected.Compare(st.senders[b].connected)
	})
	return out
}

// Len returns the number of connected senders.
func (st *senderTracker) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.senders)
}

func (st *senderTracker) holders() int {
	n := 0
	for _, s := range st.senders {
		if s.presence {
			n++
		}
	}
	return n
}
