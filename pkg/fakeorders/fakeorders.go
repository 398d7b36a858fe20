// Package fakeorders produces plausible orders and entries for tests and
// local seeding. Prices and paid flags are reproducible from the seed;
// names and dishes come from faker.
package fakeorders

import (
	"encoding/binary"
	"io"
	"strings"

	faker "github.com/go-faker/faker/v4"

	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/pkg/prng"
)

type Generator struct {
	src io.Reader
}

func New(seed int64) *Generator {
	return &Generator{src: prng.New(seed)}
}

func (g *Generator) intn(n int64) int64 {
	var b [8]byte
	_, _ = g.src.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:])>>1) % n
}

type fakeEntry struct {
	Buyer string `faker:"first_name"`
	Food  string `faker:"word"`
}

// Price returns a whole-cent price between 1.00 and 30.00 EUR.
func (g *Generator) Price() order.Millicents {
	return order.Millicents((100 + g.intn(2901)) * 1000)
}

func (g *Generator) Paid() bool { return g.intn(2) == 1 }

// Entry returns an entry that passes order validation.
func (g *Generator) Entry() order.NewEntry {
	var f fakeEntry
	if err := faker.FakeData(&f); err != nil {
		f = fakeEntry{Buyer: "Guest", Food: "pizza"}
	}
	return order.NewEntry{
		Buyer: fit(f.Buyer, "Guest"),
		Food:  fit(f.Food, "pizza"),
		Price: g.Price(),
	}
}

func (g *Generator) MenuURL() string {
	return "https://" + strings.ToLower(faker.DomainName()) + "/menu"
}

func fit(s, fallback string) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) < 2 {
		s = fallback
	}
	if len(s) > order.MaxStrLen {
		s = s[:order.MaxStrLen]
	}
	return s
}
