package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zoravur/orderfeed/internal/order"
)

// ParseID reads a positive decimal id, as used in URLs and CLI arguments.
func ParseID(field, s string) (order.ID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, &order.ValidationError{Field: field, Reason: fmt.Sprintf("invalid id %q", s)}
	}
	return id, nil
}

func FormatID(id order.ID) string {
	return strconv.FormatInt(id, 10)
}

// ParsePrice accepts either a euro amount ("13.37", "13,37") or, with a
// trailing "m", raw millicents ("1337000m").
func ParsePrice(s string) (order.Millicents, error) {
	s = strings.TrimSpace(s)
	if raw, ok := strings.CutSuffix(s, "m"); ok {
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, &order.ValidationError{Field: "price", Reason: fmt.Sprintf("invalid millicents %q", s)}
		}
		return order.FromRaw(i)
	}
	return order.ParseEuro(s)
}
