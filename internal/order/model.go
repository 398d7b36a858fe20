package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID identifies an order or an entry at the storage and transport edges.
type ID = int64

type State int32

const (
	StateUnspecified State = 0
	StateOpen        State = 1
	StateClosed      State = 2
	StateDelivered   State = 3
)

var stateNames = map[State]string{
	StateUnspecified: "unspecified",
	StateOpen:        "open",
	StateClosed:      "closed",
	StateDelivered:   "delivered",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) Valid() bool {
	return s == StateOpen || s == StateClosed || s == StateDelivered
}

// ParseState accepts a state name ("open") or its number ("1").
func ParseState(s string) (State, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st, name := range stateNames {
		if name == s && st.Valid() {
			return st, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && State(n).Valid() {
		return State(n), nil
	}
	return StateUnspecified, &ValidationError{Field: "state", Reason: fmt.Sprintf("unknown state %q", s)}
}

// CanTransition reports whether an order in state s may move to next.
// Same-state updates are accepted.
func (s State) CanTransition(next State) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case StateOpen:
		return next == StateClosed
	case StateClosed:
		return next == StateOpen || next == StateDelivered
	default:
		return false
	}
}

// Order is the persisted order row.
type Order struct {
	ID        ID
	MenuURL   string
	State     State
	CreatedAt time.Time
	// Revision is bumped by every committed change to the order or its entries.
	Revision int64
}

// Entry is the persisted order entry row.
type Entry struct {
	ID      ID
	OrderID ID
	Buyer   string
	Food    string
	Price   Millicents
	Paid    bool
}

// NewEntry is the client-supplied part of an entry.
type NewEntry struct {
	Buyer string
	Food  string
	Price Millicents
}

// Aggregate is an order row together with its entry rows, as read in one
// consistent view of storage.
type Aggregate struct {
	Order   Order
	Entries []Entry
}

func (a Aggregate) Snapshot() Snapshot { return BuildSnapshot(a.Order, a.Entries) }

// CheckEditable rejects entry additions and removals unless the order is open.
func (o Order) CheckEditable() error {
	if o.State != StateOpen {
		return &ValidationError{Field: "state", Reason: fmt.Sprintf("order %d is %s, entries can only change while it is open", o.ID, o.State)}
	}
	return nil
}

func (o Order) CheckTransition(next State) error {
	if !o.State.CanTransition(next) {
		return &ValidationError{Field: "state", Reason: fmt.Sprintf("cannot move order %d from %s to %s", o.ID, o.State, next)}
	}
	return nil
}
