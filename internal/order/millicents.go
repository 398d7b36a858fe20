package order

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Millicents is a price in thousandths of a euro cent.
type Millicents int64

const millicentsPerEuro = 100000

func FromRaw(i int64) (Millicents, error) {
	if i < 0 {
		return 0, &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return Millicents(i), nil
}

// ParseEuro parses a human price such as "13.37" or "13,37".
func ParseEuro(s string) (Millicents, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "€"))
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{Field: "price", Reason: fmt.Sprintf("cannot parse %q", s)}
	}
	if f < 0 {
		return 0, &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return Millicents(math.Round(f * millicentsPerEuro)), nil
}

func (m Millicents) Raw() int64 { return int64(m) }

// Euro splits m into whole euros and cents. Fractions of a cent round up.
func (m Millicents) Euro() (euros, cents int64) {
	mc := int64(m)
	euros = mc / millicentsPerEuro
	rest := mc - euros*millicentsPerEuro
	if rest > 0 {
		cents = (rest-1)/1000 + 1
	} else {
		cents = int64(math.Round(float64(rest) / 1000))
	}
	if cents == 100 {
		euros++
		cents = 0
	}
	return euros, cents
}

func (m Millicents) String() string {
	e, c := m.Euro()
	return fmt.Sprintf("%d.%02d €", e, c)
}
