package order

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxStrLen bounds every free-text field, in bytes.
const MaxStrLen = 210

const minNameLen = 2

func checkLength(field, s string) error {
	if len(s) > MaxStrLen {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("exceeds the maximum limit %d", MaxStrLen)}
	}
	return nil
}

func ValidateMenuURL(menuURL string) error {
	if strings.TrimSpace(menuURL) == "" {
		return &ValidationError{Field: "menu_url", Reason: "must not be empty"}
	}
	return checkLength("menu_url", menuURL)
}

func (e NewEntry) Validate() error {
	for _, f := range []struct{ name, val string }{{"buyer", e.Buyer}, {"food", e.Food}} {
		if err := checkLength(f.name, f.val); err != nil {
			return err
		}
		if utf8.RuneCountInString(strings.TrimSpace(f.val)) < minNameLen {
			return &ValidationError{Field: f.name, Reason: fmt.Sprintf("must have at least %d characters", minNameLen)}
		}
	}
	if e.Price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}

// Normalize trims the free-text fields.
func (e NewEntry) Normalize() NewEntry {
	e.Buyer = strings.TrimSpace(e.Buyer)
	e.Food = strings.TrimSpace(e.Food)
	return e
}
