package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"l2book/biz/model"
)

// ParseSide accepts the wire spellings plus the common aliases used on the
// REST surface and the CLI.
func ParseSide(s string) (model.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid", "buy":
		return model.Bid, nil
	case "ask", "sell":
		return model.Ask, nil
	default:
		return 0, fmt.Errorf("bad side %q, want bid or ask", s)
	}
}

// ParsePrice parses an exact decimal price. Floats never enter the book.
func ParsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad price %q: %w", s, err)
	}
	return p, nil
}

// ParseQuantity parses a whole-unit order quantity.
func ParseQuantity(s string) (model.Quantity, error) {
	q, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad quantity %q: %w", s, err)
	}
	return model.Quantity(q), nil
}
