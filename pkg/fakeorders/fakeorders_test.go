package fakeorders

import (
	"testing"

	"github.com/zoravur/orderfeed/internal/order"
)

func TestEntriesAreValid(t *testing.T) {
	g := New(1234)
	for i := 0; i < 50; i++ {
		e := g.Entry()
		if err := e.Validate(); err != nil {
			t.Fatalf("entry %d %+v: %v", i, e, err)
		}
		if e.Price < 100000 || e.Price > 3000000 {
			t.Fatalf("price out of range: %d", e.Price)
		}
	}
	if err := order.ValidateMenuURL(g.MenuURL()); err != nil {
		t.Fatal(err)
	}
}

func TestSeedIsReproducible(t *testing.T) {
	a, b := New(1337), New(1337)
	for i := 0; i < 20; i++ {
		if pa, pb := a.Price(), b.Price(); pa != pb {
			t.Fatalf("step %d: %d != %d", i, pa, pb)
		}
		if a.Paid() != b.Paid() {
			t.Fatalf("step %d: paid differs", i)
		}
	}
}
