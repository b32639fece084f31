package service

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"

	"l2book/biz/model"
)

// OrderBook maintains the level-2 view: aggregate resting quantity per price
// level per side, plus an index of every active order. Prices are exact
// decimals compared by mathematical value, so "12.50" and "12.5" land on the
// same level.
//
// Not safe for concurrent use. The book manager goroutine is the only caller.
type OrderBook struct {
	bids   *skiplist.SkipList // best (highest) bid at Front()
	asks   *skiplist.SkipList // best (lowest) ask at Front()
	orders map[model.OrderID]restingOrder
}

type restingOrder struct {
	Side     model.Side
	Price    decimal.Decimal
	Quantity model.Quantity
}

// Skiplist comparators over decimal prices. Scores must grow in list order,
// so the bid side negates them.

type askPriceComparator struct{}

func (askPriceComparator) Compare(l, r interface{}) int {
	return l.(decimal.Decimal).Cmp(r.(decimal.Decimal))
}

func (askPriceComparator) CalcScore(key interface{}) float64 {
	return key.(decimal.Decimal).InexactFloat64()
}

type bidPriceComparator struct{}

func (bidPriceComparator) Compare(l, r interface{}) int {
	return r.(decimal.Decimal).Cmp(l.(decimal.Decimal))
}

func (bidPriceComparator) CalcScore(key interface{}) float64 {
	return -key.(decimal.Decimal).InexactFloat64()
}

// NewOrderBook creates an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:   skiplist.New(bidPriceComparator{}),
		asks:   skiplist.New(askPriceComparator{}),
		orders: make(map[model.OrderID]restingOrder),
	}
}

func (ob *OrderBook) levels(side model.Side) *skiplist.SkipList {
	if side == model.Bid {
		return ob.bids
	}
	return ob.asks
}

// Place inserts a new active order and bumps its level's aggregate quantity,
// creating the level if absent. A reused order id means the caller's id
// assignment is broken; the book is left unchanged in that case.
func (ob *OrderBook) Place(side model.Side, price decimal.Decimal, qty model.Quantity, id model.OrderID) error {
	if qty == 0 {
		return ErrInvalidQuantity
	}
	if _, ok := ob.orders[id]; ok {
		return ErrDuplicateOrderID
	}
	book := ob.levels(side)
	if elem := book.Get(price); elem != nil {
		elem.Value = elem.Value.(model.Quantity) + qty
	} else {
		book.Set(price, qty)
	}
	ob.orders[id] = restingOrder{Side: side, Price: price, Quantity: qty}
	return nil
}

// Cancel removes an active order, decrements its level and drops the level
// when the aggregate reaches zero. A zero-quantity level is never retained.
func (ob *OrderBook) Cancel(id model.OrderID) error {
	o, ok := ob.orders[id]
	if !ok {
		return ErrUnknownOrderID
	}
	delete(ob.orders, id)
	ob.reduceLevel(o.Side, o.Price, o.Quantity)
	return nil
}

// Replace is cancel + place under the same id and side at the new price and
// quantity.
func (ob *OrderBook) Replace(id model.OrderID, price decimal.Decimal, qty model.Quantity) error {
	if qty == 0 {
		return ErrInvalidQuantity
	}
	o, ok := ob.orders[id]
	if !ok {
		return ErrUnknownOrderID
	}
	// Cannot fail past this point: the id is active and freed by the cancel.
	_ = ob.Cancel(id)
	return ob.Place(o.Side, price, qty, id)
}

// Trade reduces a resting order (and its level) by qty. The order leaves the
// index when fully filled. Overtrading fails without touching the book.
func (ob *OrderBook) Trade(id model.OrderID, qty model.Quantity) error {
	o, ok := ob.orders[id]
	if !ok {
		return ErrUnknownOrderID
	}
	if qty > o.Quantity {
		return ErrOvertrade
	}
	o.Quantity -= qty
	if o.Quantity == 0 {
		delete(ob.orders, id)
	} else {
		ob.orders[id] = o
	}
	ob.reduceLevel(o.Side, o.Price, qty)
	return nil
}

// reduceLevel subtracts qty from a level, removing it at zero. The level
// exists whenever its side holds an active order at that price, so the nil
// check only guards against corruption.
func (ob *OrderBook) reduceLevel(side model.Side, price decimal.Decimal, qty model.Quantity) {
	book := ob.levels(side)
	elem := book.Get(price)
	if elem == nil {
		return
	}
	rest := elem.Value.(model.Quantity)
	if qty >= rest {
		book.Remove(price)
		return
	}
	elem.Value = rest - qty
}

// SizeAt returns the aggregate quantity resting at a price. An absent level
// is an error, not zero: callers asking about a price that is not in the book
// get told so explicitly.
func (ob *OrderBook) SizeAt(side model.Side, price decimal.Decimal) (model.Quantity, error) {
	elem := ob.levels(side).Get(price)
	if elem == nil {
		return 0, ErrNoSuchPriceLevel
	}
	return elem.Value.(model.Quantity), nil
}

// Depth returns the number of distinct price levels on a side.
func (ob *OrderBook) Depth(side model.Side) int {
	return ob.levels(side).Len()
}

// TopOfBook returns the best price on a side: highest bid, lowest ask.
func (ob *OrderBook) TopOfBook(side model.Side) (decimal.Decimal, error) {
	front := ob.levels(side).Front()
	if front == nil {
		return decimal.Decimal{}, ErrEmptyBook
	}
	return front.Key().(decimal.Decimal), nil
}

// Snapshot returns a side's levels best-first. Used by the snapshot cache and
// the REST surface; never nil.
func (ob *OrderBook) Snapshot(side model.Side) []model.PriceLevel {
	book := ob.levels(side)
	out := make([]model.PriceLevel, 0, book.Len())
	for elem := book.Front(); elem != nil; elem = elem.Next() {
		out = append(out, model.PriceLevel{
			Price:    elem.Key().(decimal.Decimal),
			Quantity: elem.Value.(model.Quantity),
		})
	}
	return out
}

// Lookup reports the side, price and remaining quantity of a resting order.
func (ob *OrderBook) Lookup(id model.OrderID) (model.Side, decimal.Decimal, model.Quantity, bool) {
	rest, ok := ob.orders[id]
	if !ok {
		return 0, decimal.Decimal{}, 0, false
	}
	return rest.Side, rest.Price, rest.Quantity, true
}

// ActiveOrders returns the number of orders currently in the index.
func (ob *OrderBook) ActiveOrders() int {
	return len(ob.orders)
}
