package order

import (
	"sort"
	"time"
)

// Snapshot is the point-in-time view of an order that is streamed to
// viewers. It is built fresh for every change and never modified after,
// so one value is shared by every subscriber.
type Snapshot struct {
	ID        ID              `json:"id"`
	MenuURL   string          `json:"menu_url"`
	State     State           `json:"state"`
	StateName string          `json:"state_name"`
	CreatedAt time.Time       `json:"created_at"`
	Rev       int64           `json:"revision"`
	Entries   []EntrySnapshot `json:"entries"`
	Total     Millicents      `json:"total_millicents"`
}

type EntrySnapshot struct {
	ID    ID         `json:"id"`
	Buyer string     `json:"buyer"`
	Food  string     `json:"food"`
	Price Millicents `json:"price_millicents"`
	Paid  bool       `json:"paid"`
}

// Revision satisfies live.Versioned.
func (s Snapshot) Revision() int64 { return s.Rev }

// Entry looks up an entry by id.
func (s Snapshot) Entry(id ID) (EntrySnapshot, bool) {
	i := sort.Search(len(s.Entries), func(i int) bool { return s.Entries[i].ID >= id })
	if i < len(s.Entries) && s.Entries[i].ID == id {
		return s.Entries[i], true
	}
	return EntrySnapshot{}, false
}

// BuildSnapshot assembles the streamed view of o. Entries are ordered by
// id regardless of the order storage returned them in.
func BuildSnapshot(o Order, entries []Entry) Snapshot {
	s := Snapshot{
		ID:        o.ID,
		MenuURL:   o.MenuURL,
		State:     o.State,
		StateName: o.State.String(),
		CreatedAt: o.CreatedAt,
		Rev:       o.Revision,
		Entries:   make([]EntrySnapshot, 0, len(entries)),
	}
	for _, e := range entries {
		s.Entries = append(s.Entries, EntrySnapshot{
			ID:    e.ID,
			Buyer: e.Buyer,
			Food:  e.Food,
			Price: e.Price,
			Paid:  e.Paid,
		})
		s.Total += e.Price
	}
	sort.Slice(s.Entries, func(i, j int) bool { return s.Entries[i].ID < s.Entries[j].ID })
	return s
}
