package prng

import (
	"bytes"
	"testing"
)

func TestDeterministic(t *testing.T) {
	a, b := make([]byte, 13), make([]byte, 13)
	if _, err := New(42).Read(a); err != nil {
		t.Fatal(err)
	}
	if _, err := New(42).Read(b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same seed, different bytes: %x vs %x", a, b)
	}

	c := make([]byte, 13)
	New(43).Read(c)
	if bytes.Equal(a, c) {
		t.Fatal("different seeds produced identical bytes")
	}
}
