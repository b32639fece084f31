package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"l2book/biz/model"
)

func price(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	p, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad price literal %q: %v", s, err)
	}
	return p
}

func mustSize(t *testing.T, ob *OrderBook, side model.Side, p decimal.Decimal) model.Quantity {
	t.Helper()
	qty, err := ob.SizeAt(side, p)
	if err != nil {
		t.Fatalf("SizeAt(%v, %s): %v", side, p, err)
	}
	return qty
}

func TestPlaceThenQuery(t *testing.T) {
	ob := NewOrderBook()
	p := price(t, "12")

	if err := ob.Place(model.Ask, p, 5, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if got := mustSize(t, ob, model.Ask, p); got != 5 {
		t.Errorf("SizeAt = %d, want 5", got)
	}
	if got := ob.Depth(model.Ask); got != 1 {
		t.Errorf("Depth(Ask) = %d, want 1", got)
	}
	top, err := ob.TopOfBook(model.Ask)
	if err != nil {
		t.Fatalf("TopOfBook: %v", err)
	}
	if !top.Equal(p) {
		t.Errorf("TopOfBook = %s, want %s", top, p)
	}
	if got := ob.Depth(model.Bid); got != 0 {
		t.Errorf("Depth(Bid) = %d, want 0", got)
	}
}

func TestLevelAggregation(t *testing.T) {
	ob := NewOrderBook()
	p := price(t, "10.50")

	if err := ob.Place(model.Bid, p, 3, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := ob.Place(model.Bid, p, 7, 2); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if got := mustSize(t, ob, model.Bid, p); got != 10 {
		t.Errorf("SizeAt = %d, want 10", got)
	}
	if got := ob.Depth(model.Bid); got != 1 {
		t.Errorf("Depth = %d, want 1", got)
	}
}

func TestDuplicateOrderID(t *testing.T) {
	ob := NewOrderBook()
	p := price(t, "9")

	if err := ob.Place(model.Ask, p, 5, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}
	err := ob.Place(model.Bid, price(t, "8"), 2, 1)
	if !errors.Is(err, ErrDuplicateOrderID) {
		t.Fatalf("Place dup = %v, want ErrDuplicateOrderID", err)
	}
	// Rejected placement must leave the book untouched.
	if got := ob.Depth(model.Bid); got != 0 {
		t.Errorf("Depth(Bid) = %d, want 0 after rejected place", got)
	}
	if got := mustSize(t, ob, model.Ask, p); got != 5 {
		t.Errorf("SizeAt(Ask, 9) = %d, want 5", got)
	}
}

func TestPlaceZeroQuantity(t *testing.T) {
	ob := NewOrderBook()
	err := ob.Place(model.Ask, price(t, "5"), 0, 1)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("Place qty 0 = %v, want ErrInvalidQuantity", err)
	}
	if got := ob.ActiveOrders(); got != 0 {
		t.Errorf("ActiveOrders = %d, want 0", got)
	}
}

func TestTrade(t *testing.T) {
	ob := NewOrderBook()
	p := price(t, "12")
	if err := ob.Place(model.Ask, p, 5, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}

	if err := ob.Trade(1, 4); err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if got := mustSize(t, ob, model.Ask, p); got != 1 {
		t.Errorf("SizeAt = %d, want 1 after partial fill", got)
	}

	// More than the remaining quantity must be rejected with nothing changed.
	if err := ob.Trade(1, 6); !errors.Is(err, ErrOvertrade) {
		t.Fatalf("Trade over = %v, want ErrOvertrade", err)
	}
	if got := mustSize(t, ob, model.Ask, p); got != 1 {
		t.Errorf("SizeAt = %d, want 1 after rejected fill", got)
	}

	// Exact fill removes the order and the level.
	if err := ob.Trade(1, 1); err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if _, err := ob.SizeAt(model.Ask, p); !errors.Is(err, ErrNoSuchPriceLevel) {
		t.Errorf("SizeAt after full fill = %v, want ErrNoSuchPriceLevel", err)
	}
	if err := ob.Trade(1, 1); !errors.Is(err, ErrUnknownOrderID) {
		t.Errorf("Trade gone = %v, want ErrUnknownOrderID", err)
	}
}

func TestTradeLeavesLevelForOtherOrders(t *testing.T) {
	ob := NewOrderBook()
	p := price(t, "12")
	if err := ob.Place(model.Ask, p, 5, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := ob.Place(model.Ask, p, 3, 2); err != nil {
		t.Fatalf("Place: %v", err)
	}

	if err := ob.Trade(1, 5); err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if got := mustSize(t, ob, model.Ask, p); got != 3 {
		t.Errorf("SizeAt = %d, want 3", got)
	}
	if got := ob.Depth(model.Ask); got != 1 {
		t.Errorf("Depth = %d, want 1", got)
	}
}

func TestCancel(t *testing.T) {
	ob := NewOrderBook()
	p := price(t, "7.25")
	if err := ob.Place(model.Bid, p, 4, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}

	if err := ob.Cancel(1); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := ob.Depth(model.Bid); got != 0 {
		t.Errorf("Depth = %d, want 0", got)
	}
	if got := ob.ActiveOrders(); got != 0 {
		t.Errorf("ActiveOrders = %d, want 0", got)
	}
	if err := ob.Cancel(1); !errors.Is(err, ErrUnknownOrderID) {
		t.Errorf("Cancel twice = %v, want ErrUnknownOrderID", err)
	}
}

func TestPlaceCancelRestoresState(t *testing.T) {
	ob := NewOrderBook()
	p := price(t, "3")
	if err := ob.Place(model.Ask, p, 2, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}

	if err := ob.Place(model.Ask, price(t, "4"), 9, 2); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := ob.Cancel(2); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if got := ob.Depth(model.Ask); got != 1 {
		t.Errorf("Depth = %d, want 1", got)
	}
	if got := mustSize(t, ob, model.Ask, p); got != 2 {
		t.Errorf("SizeAt = %d, want 2", got)
	}
	top, err := ob.TopOfBook(model.Ask)
	if err != nil {
		t.Fatalf("TopOfBook: %v", err)
	}
	if !top.Equal(p) {
		t.Errorf("TopOfBook = %s, want %s", top, p)
	}
}

func TestReplace(t *testing.T) {
	ob := NewOrderBook()
	if err := ob.Place(model.Bid, price(t, "10"), 5, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}

	if err := ob.Replace(1, price(t, "11"), 8); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if _, err := ob.SizeAt(model.Bid, price(t, "10")); !errors.Is(err, ErrNoSuchPriceLevel) {
		t.Errorf("old level still present: %v", err)
	}
	if got := mustSize(t, ob, model.Bid, price(t, "11")); got != 8 {
		t.Errorf("SizeAt(11) = %d, want 8", got)
	}

	if err := ob.Replace(2, price(t, "11"), 1); !errors.Is(err, ErrUnknownOrderID) {
		t.Errorf("Replace unknown = %v, want ErrUnknownOrderID", err)
	}
	if err := ob.Replace(1, price(t, "11"), 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Replace qty 0 = %v, want ErrInvalidQuantity", err)
	}
	// Both rejections leave the book as it was.
	if got := mustSize(t, ob, model.Bid, price(t, "11")); got != 8 {
		t.Errorf("SizeAt(11) = %d, want 8 after rejected replace", got)
	}
}

func TestTopOfBookOrdering(t *testing.T) {
	ob := NewOrderBook()
	for i, s := range []string{"10", "12", "11"} {
		if err := ob.Place(model.Bid, price(t, s), 1, model.OrderID(i+1)); err != nil {
			t.Fatalf("Place bid %s: %v", s, err)
		}
		if err := ob.Place(model.Ask, price(t, s), 1, model.OrderID(i+10)); err != nil {
			t.Fatalf("Place ask %s: %v", s, err)
		}
	}

	bid, err := ob.TopOfBook(model.Bid)
	if err != nil {
		t.Fatalf("TopOfBook(Bid): %v", err)
	}
	if !bid.Equal(price(t, "12")) {
		t.Errorf("best bid = %s, want 12", bid)
	}
	ask, err := ob.TopOfBook(model.Ask)
	if err != nil {
		t.Fatalf("TopOfBook(Ask): %v", err)
	}
	if !ask.Equal(price(t, "10")) {
		t.Errorf("best ask = %s, want 10", ask)
	}

	if _, err := NewOrderBook().TopOfBook(model.Bid); !errors.Is(err, ErrEmptyBook) {
		t.Errorf("TopOfBook empty = %v, want ErrEmptyBook", err)
	}
}

func TestExactDecimalLevels(t *testing.T) {
	ob := NewOrderBook()
	// 0.1 and 0.10 are the same price level; 0.1000000001 is not.
	if err := ob.Place(model.Ask, price(t, "0.1"), 1, 1); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := ob.Place(model.Ask, price(t, "0.10"), 2, 2); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := ob.Place(model.Ask, price(t, "0.1000000001"), 4, 3); err != nil {
		t.Fatalf("Place: %v", err)
	}

	if got := ob.Depth(model.Ask); got != 2 {
		t.Errorf("Depth = %d, want 2", got)
	}
	if got := mustSize(t, ob, model.Ask, price(t, "0.1")); got != 3 {
		t.Errorf("SizeAt(0.1) = %d, want 3", got)
	}
}

func TestSnapshotBestFirst(t *testing.T) {
	ob := NewOrderBook()
	for i, s := range []string{"10", "12", "11"} {
		if err := ob.Place(model.Bid, price(t, s), model.Quantity(i+1), model.OrderID(i+1)); err != nil {
			t.Fatalf("Place: %v", err)
		}
	}

	snap := ob.Snapshot(model.Bid)
	if len(snap) != 3 {
		t.Fatalf("Snapshot len = %d, want 3", len(snap))
	}
	want := []string{"12", "11", "10"}
	var total model.Quantity
	for i, lvl := range snap {
		if !lvl.Price.Equal(price(t, want[i])) {
			t.Errorf("snap[%d].Price = %s, want %s", i, lvl.Price, want[i])
		}
		total += lvl.Quantity
	}
	if total != 6 {
		t.Errorf("aggregate quantity = %d, want 6", total)
	}

	if snap := NewOrderBook().Snapshot(model.Ask); snap == nil || len(snap) != 0 {
		t.Errorf("empty Snapshot = %#v, want empty non-nil slice", snap)
	}
}
