package model

import (
	"github.com/shopspring/decimal"
)

// Side of the book an order rests on.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "Bid"
	case Ask:
		return "Ask"
	default:
		return "Side(?)"
	}
}

// OrderID identifies one resting order. Assigned by the book manager,
// monotonically increasing, never reused while the process runs.
type OrderID = uint64

// ClientID identifies one connected session. Same assignment rules as OrderID.
type ClientID = uint64

// Quantity is a non-negative integer amount.
type Quantity = uint64

// ToServer is a client request. Sessions decode these off the wire and
// enqueue them with the session's ClientID attached.
type ToServer interface{ isToServer() }

type GetBookDepth struct {
	Side Side
}

type PlaceOrder struct {
	Side     Side
	Price    decimal.Decimal
	Quantity Quantity
}

type GetTopOfBook struct {
	Side Side
}

type GetSizeForPriceLevel struct {
	Side  Side
	Price decimal.Decimal
}

func (GetBookDepth) isToServer()         {}
func (PlaceOrder) isToServer()           {}
func (GetTopOfBook) isToServer()         {}
func (GetSizeForPriceLevel) isToServer() {}

// ToClient is a server-to-client message delivered on a session's private
// sink. Connected is always the first message a new session receives.
type ToClient interface{ isToClient() }

type Connected struct {
	ClientID ClientID
}

// LatestDepth is broadcast to every connected client whenever the aggregate
// quantity at a price level changes. Quantity 0 means the level is gone.
type LatestDepth struct {
	Side     Side
	Quantity Quantity
	Price    decimal.Decimal
}

type BookDepth struct {
	Side  Side
	Count uint64
}

type TopOfBook struct {
	Side  Side
	Price decimal.Decimal
}

type SizeForPriceLevel struct {
	Side     Side
	Quantity Quantity
}

// ErrorReply carries a typed failure back to the one client whose request
// triggered it. Query failures never crash the manager and never broadcast.
type ErrorReply struct {
	Code   ErrorCode
	Detail string
}

func (Connected) isToClient()         {}
func (LatestDepth) isToClient()       {}
func (BookDepth) isToClient()         {}
func (TopOfBook) isToClient()         {}
func (SizeForPriceLevel) isToClient() {}
func (ErrorReply) isToClient()        {}

// ErrorCode enumerates the failure classes a client can be handed.
type ErrorCode uint8

const (
	CodeUnknown ErrorCode = iota
	CodeDuplicateOrderID
	CodeUnknownOrderID
	CodeOvertrade
	CodeNoSuchPriceLevel
	CodeEmptyBook
	CodeInvalidQuantity
)

func (c ErrorCode) String() string {
	switch c {
	case CodeDuplicateOrderID:
		return "duplicate_order_id"
	case CodeUnknownOrderID:
		return "unknown_order_id"
	case CodeOvertrade:
		return "overtrade"
	case CodeNoSuchPriceLevel:
		return "no_such_price_level"
	case CodeEmptyBook:
		return "empty_book"
	case CodeInvalidQuantity:
		return "invalid_quantity"
	default:
		return "unknown"
	}
}

// PriceLevel is one aggregated row of the level-2 view.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity Quantity        `json:"quantity"`
}

// Fill is what the external matching process reports into the book: a
// quantity traded against a resting order. Consumed from the fills feed.
type Fill struct {
	RestingOrderID OrderID  `json:"resting_order_id"`
	Quantity       Quantity `json:"quantity"`
}
