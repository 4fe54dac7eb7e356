package interaction

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// Kind classifies a ticket.
type Kind uint8

const (
	KindRequest Kind = iota
	KindObserve
	KindFind
	KindPresence
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindObserve:
		return "observe"
	case KindFind:
		return "find"
	case KindPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// Ticket correlates an outstanding operation with the client that issued it.
type Ticket struct {
	ID       uint64
	Kind     Kind
	Method   wire.Method
	Sender   string
	Signal   uint32
	ConnType wire.ConnType

	// Observe or Presence is the stack handle once the request is accepted.
	Observe  transport.ObserveHandle
	Presence transport.PresenceHandle

	Issued time.Time

	// Expires is zero for tickets that live until stopped or resolved.
	Expires time.Time
}

// TicketTable holds live tickets. One mutex guards it, so resolving on
// completion and cancelling on a synchronous failure cannot both succeed.
type TicketTable struct {
	mu      sync.Mutex
	nextID  uint64
	tickets map[uint64]*Ticket
}

// NewTicketTable creates an empty table.
func NewTicketTable() *TicketTable {
	return &TicketTable{tickets: make(map[uint64]*Ticket)}
}

// Issue stores t under a new id and returns the id. Ids are never reused.
func (tt *TicketTable) Issue(t Ticket) uint64 {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.nextID++
	t.ID = tt.nextID
	if t.Issued.IsZero() {
		t.Issued = time.Now()
	}
	tt.tickets[t.ID] = &t
	return t.ID
}

// Resolve removes and returns the ticket. Only the first call for an id
// succeeds.
func (tt *TicketTable) Resolve(id uint64) (Ticket, bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	t, ok := tt.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	delete(tt.tickets, id)
	return *t, true
}

// Peek returns the ticket and leaves it live.
func (tt *TicketTable) Peek(id uint64) (Ticket, bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	t, ok := tt.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return *t, true
}

// Cancel removes the ticket without delivering anything. It reports
// whether the ticket was still live.
func (tt *TicketTable) Cancel(id uint64) bool {
	_, ok := tt.Resolve(id)
	return ok
}

// Update applies fn to a live ticket.
func (tt *TicketTable) Update(id uint64, fn func(t *Ticket)) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	t, ok := tt.tickets[id]
	if ok {
		fn(t)
	}
	return ok
}

// Find returns the first live ticket, in id order, matching fn.
func (tt *TicketTable) Find(fn func(t Ticket) bool) (Ticket, bool) {
	for _, t := range tt.snapshot() {
		if fn(t) {
			return t, true
		}
	}
	return Ticket{}, false
}

// BySender returns the live tickets issued by sender, in id order.
func (tt *TicketTable) BySender(sender string) []Ticket {
	var out []Ticket
	for _, t := range tt.snapshot() {
		if t.Sender == sender {
			out = append(out, t)
		}
	}
	return out
}

// Expire removes and returns every ticket whose expiry is before now.
func (tt *TicketTable) Expire(now time.Time) []Ticket {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	var out []Ticket
	for id, t := range tt.tickets {
		if !t.Expires.IsZero() && t.Expires.Before(now) {
			out = append(out, *t)
			delete(tt.tickets, id)
		}
	}
	sortTickets(out)
	return out
}

// Len returns the number of live tickets.
func (tt *TicketTable) Len() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.tickets)
}

func (tt *TicketTable) snapshot() []Ticket {
	tt.mu.Lock()
	out := make([]Ticket, 0, len(tt.tickets))
	for _, t := range tt.tickets {
		out = append(out, *t)
	}
	tt.mu.Unlock()
	sortTickets(out)
	return out
}

func sortTickets(ts []Ticket) {
	slices.SortFunc(ts, func(a, b Ticket) int { return cmp.Compare(a.ID, b.ID) })
}
