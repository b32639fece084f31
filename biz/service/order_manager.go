package service

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/shopspring/decimal"

	"l2book/biz/engine"
	"l2book/biz/model"
)

// ManagerConfig sizes the book manager's queues. The inbox is bounded on
// purpose: a producer that outruns the manager blocks, it does not grow an
// unbounded backlog. Outbound sinks are owned by the sessions; see deliver
// for the slow-consumer policy on that side.
type ManagerConfig struct {
	InboxSize int
	Heartbeat time.Duration
}

// BookSnapshot is the full level-2 view, best-first on both sides.
type BookSnapshot struct {
	Bids []model.PriceLevel `json:"bids"`
	Asks []model.PriceLevel `json:"asks"`
}

// BookManager is the single writer of the order book. One goroutine (Run)
// drains the inbox and applies events strictly in arrival order; sessions,
// REST handlers and the fills feed only ever talk to it through the inbox.
// Client and order ids are plain counters owned by this goroutine, never
// reused for the life of the process.
type BookManager struct {
	cfg   ManagerConfig
	inbox chan managerEvent
	done  chan struct{}

	book         *OrderBook
	clients      map[model.ClientID]chan model.ToClient
	clientOrders map[model.ClientID][]model.OrderID
	nextClientID model.ClientID
	nextOrderID  model.OrderID

	// Optional sidecars, nil when the backing infra is not configured.
	feed  *DepthFeed
	cache *BookCache
	audit *PlacementAudit
}

type managerEvent interface{ isManagerEvent() }

type evClientConnected struct {
	sink chan model.ToClient
}

type evClientDisconnected struct {
	clientID model.ClientID
}

type evPlaceOrder struct {
	clientID model.ClientID
	side     model.Side
	price    decimal.Decimal
	quantity model.Quantity
}

type evGetBookDepth struct {
	clientID model.ClientID
	side     model.Side
}

type evGetTopOfBook struct {
	clientID model.ClientID
	side     model.Side
}

type evGetSizeForPriceLevel struct {
	clientID model.ClientID
	side     model.Side
	price    decimal.Decimal
}

type evOrderFilled struct {
	orderID  model.OrderID
	quantity model.Quantity
}

type evSnapshot struct {
	reply chan BookSnapshot
}

func (evClientConnected) isManagerEvent()      {}
func (evClientDisconnected) isManagerEvent()   {}
func (evPlaceOrder) isManagerEvent()           {}
func (evGetBookDepth) isManagerEvent()         {}
func (evGetTopOfBook) isManagerEvent()         {}
func (evGetSizeForPriceLevel) isManagerEvent() {}
func (evOrderFilled) isManagerEvent()          {}
func (evSnapshot) isManagerEvent()             {}

func NewBookManager(cfg ManagerConfig, feed *DepthFeed, cache *BookCache, audit *PlacementAudit) *BookManager {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = time.Second
	}
	return &BookManager{
		cfg:          cfg,
		inbox:        make(chan managerEvent, cfg.InboxSize),
		done:         make(chan struct{}),
		book:         NewOrderBook(),
		clients:      make(map[model.ClientID]chan model.ToClient),
		clientOrders: make(map[model.ClientID][]model.OrderID),
		feed:         feed,
		cache:        cache,
		audit:        audit,
	}
}

// Run is the manager's event loop. It MUST be the only goroutine that touches
// the book and the client registry.
func (m *BookManager) Run(ctx context.Context) {
	hlog.Infof("[BookManager] started, inbox=%d", m.cfg.InboxSize)
	defer close(m.done)

	heartbeat := time.NewTicker(m.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hlog.Infof("[BookManager] stopping, connected clients: %d", len(m.clients))
			return
		case ev := <-m.inbox:
			m.handle(ev)
		case <-heartbeat.C:
			hlog.Infof("[BookManager] connected clients: %d, active orders: %d",
				len(m.clients), m.book.ActiveOrders())
		}
	}
}

// enqueue blocks while the inbox is full so a fast producer throttles instead
// of piling up. It gives up once the manager has stopped.
func (m *BookManager) enqueue(ev managerEvent) {
	select {
	case m.inbox <- ev:
	case <-m.done:
		hlog.Warnf("[BookManager] event dropped, manager stopped")
	}
}

// Connect registers a new session. The sink's first message is always
// Connected with the assigned client id; the session must not relay anything
// before it has seen it.
func (m *BookManager) Connect(sink chan model.ToClient) {
	m.enqueue(evClientConnected{sink: sink})
}

// Disconnect tears a session down: all orders owned by the client are
// cancelled and its sink is closed. Sessions call this exactly once.
func (m *BookManager) Disconnect(clientID model.ClientID) {
	m.enqueue(evClientDisconnected{clientID: clientID})
}

func (m *BookManager) Place(clientID model.ClientID, side model.Side, price decimal.Decimal, qty model.Quantity) {
	m.enqueue(evPlaceOrder{clientID: clientID, side: side, price: price, quantity: qty})
}

func (m *BookManager) QueryBookDepth(clientID model.ClientID, side model.Side) {
	m.enqueue(evGetBookDepth{clientID: clientID, side: side})
}

func (m *BookManager) QueryTopOfBook(clientID model.ClientID, side model.Side) {
	m.enqueue(evGetTopOfBook{clientID: clientID, side: side})
}

func (m *BookManager) QuerySizeForPriceLevel(clientID model.ClientID, side model.Side, price decimal.Decimal) {
	m.enqueue(evGetSizeForPriceLevel{clientID: clientID, side: side, price: price})
}

// ApplyFill reports a trade decided by the external matching process against
// a resting order. Called by the fills feed consumer.
func (m *BookManager) ApplyFill(orderID model.OrderID, qty model.Quantity) {
	m.enqueue(evOrderFilled{orderID: orderID, quantity: qty})
}

// Snapshot returns the current level-2 view, serialized through the inbox so
// it observes the same order as every other event. Used by the REST surface.
func (m *BookManager) Snapshot(ctx context.Context) (BookSnapshot, error) {
	reply := make(chan BookSnapshot, 1)
	select {
	case m.inbox <- evSnapshot{reply: reply}:
	case <-m.done:
		return BookSnapshot{}, errors.New("book manager stopped")
	case <-ctx.Done():
		return BookSnapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-m.done:
		return BookSnapshot{}, errors.New("book manager stopped")
	case <-ctx.Done():
		return BookSnapshot{}, ctx.Err()
	}
}

func (m *BookManager) handle(ev managerEvent) {
	switch e := ev.(type) {
	case evClientConnected:
		m.handleConnected(e)
	case evClientDisconnected:
		m.handleDisconnected(e)
	case evPlaceOrder:
		m.handlePlace(e)
	case evGetBookDepth:
		m.handleBookDepth(e)
	case evGetTopOfBook:
		m.handleTopOfBook(e)
	case evGetSizeForPriceLevel:
		m.handleSizeForPriceLevel(e)
	case evOrderFilled:
		m.handleFill(e)
	case evSnapshot:
		e.reply <- BookSnapshot{Bids: m.book.Snapshot(model.Bid), Asks: m.book.Snapshot(model.Ask)}
	default:
		hlog.Errorf("[BookManager] unknown event %T", ev)
	}
}

func (m *BookManager) handleConnected(e evClientConnected) {
	id := m.nextClientID
	m.nextClientID++
	// Deliver Connected before registering so the id cannot be preceded by a
	// broadcast on this sink.
	if !m.deliver(id, e.sink, model.Connected{ClientID: id}) {
		hlog.Errorf("[BookManager] could not greet client %d, dropping session", id)
		close(e.sink)
		return
	}
	m.clients[id] = e.sink
	hlog.Infof("[BookManager] client %d connected", id)
}

func (m *BookManager) handleDisconnected(e evClientDisconnected) {
	sink, ok := m.clients[e.clientID]
	if !ok {
		return
	}
	// Cancel everything the client owns. Orders may already be gone through a
	// full fill; that is fine.
	touched := make(map[string]model.LatestDepth)
	for _, orderID := range m.clientOrders[e.clientID] {
		side, price, _, found := m.book.Lookup(orderID)
		if !found {
			continue
		}
		if err := m.book.Cancel(orderID); err != nil {
			hlog.Errorf("[BookManager] cancel on disconnect, order %d: %v", orderID, err)
			continue
		}
		touched[levelKey(side, price)] = m.latestDepth(side, price)
	}
	delete(m.clients, e.clientID)
	delete(m.clientOrders, e.clientID)
	close(sink)
	updates := make([]model.LatestDepth, 0, len(touched))
	for _, update := range touched {
		m.broadcast(update)
		updates = append(updates, update)
	}
	m.publishSideEffects(updates, nil)
	hlog.Infof("[BookManager] client %d disconnected, %d level(s) updated", e.clientID, len(touched))
}

func (m *BookManager) handlePlace(e evPlaceOrder) {
	orderID := m.nextOrderID
	m.nextOrderID++

	if err := m.book.Place(e.side, e.price, e.quantity, orderID); err != nil {
		if errors.Is(err, ErrDuplicateOrderID) {
			// Own id bookkeeping broke. Abort this operation loudly, keep
			// serving; the book itself is untouched.
			hlog.Errorf("[BookManager] BUG: issued duplicate order id %d: %v", orderID, err)
		}
		m.replyTo(e.clientID, model.ErrorReply{Code: ErrorCodeFor(err), Detail: err.Error()})
		return
	}
	m.clientOrders[e.clientID] = append(m.clientOrders[e.clientID], orderID)

	update := m.latestDepth(e.side, e.price)
	m.broadcast(update)
	m.publishSideEffects([]model.LatestDepth{update}, &model.Placement{
		OrderID:  uint64(orderID),
		ClientID: uint64(e.clientID),
		Side:     e.side.String(),
		Price:    e.price.String(),
		Quantity: uint64(e.quantity),
	})
}

func (m *BookManager) handleBookDepth(e evGetBookDepth) {
	m.replyTo(e.clientID, model.BookDepth{Side: e.side, Count: uint64(m.book.Depth(e.side))})
}

func (m *BookManager) handleTopOfBook(e evGetTopOfBook) {
	price, err := m.book.TopOfBook(e.side)
	if err != nil {
		m.replyTo(e.clientID, model.ErrorReply{Code: ErrorCodeFor(err), Detail: err.Error()})
		return
	}
	m.replyTo(e.clientID, model.TopOfBook{Side: e.side, Price: price})
}

func (m *BookManager) handleSizeForPriceLevel(e evGetSizeForPriceLevel) {
	qty, err := m.book.SizeAt(e.side, e.price)
	if err != nil {
		m.replyTo(e.clientID, model.ErrorReply{Code: ErrorCodeFor(err), Detail: err.Error()})
		return
	}
	m.replyTo(e.clientID, model.SizeForPriceLevel{Side: e.side, Quantity: qty})
}

func (m *BookManager) handleFill(e evOrderFilled) {
	side, price, _, found := m.book.Lookup(e.orderID)
	if !found {
		// The resting order can legitimately be gone: its owner disconnected
		// between the match and the fill report.
		hlog.Warnf("[BookManager] fill for vanished order %d, ignored", e.orderID)
		return
	}
	if err := m.book.Trade(e.orderID, e.quantity); err != nil {
		// Overtrade from the external feed is a feed bug, not ours. Log loud,
		// book stays consistent.
		hlog.Errorf("[BookManager] fill rejected, order %d qty %d: %v", e.orderID, e.quantity, err)
		return
	}
	update := m.latestDepth(side, price)
	m.broadcast(update)
	m.publishSideEffects([]model.LatestDepth{update}, nil)
}

// latestDepth builds the broadcast for a level, quantity 0 when the level is
// gone.
func (m *BookManager) latestDepth(side model.Side, price decimal.Decimal) model.LatestDepth {
	qty, err := m.book.SizeAt(side, price)
	if err != nil {
		qty = 0
	}
	return model.LatestDepth{Side: side, Quantity: qty, Price: price}
}

// broadcast fans a depth update out to every connected client, the placer
// included. A failure for one client never aborts the others.
func (m *BookManager) broadcast(update model.LatestDepth) {
	for id, sink := range m.clients {
		m.deliver(id, sink, update)
	}
}

func (m *BookManager) replyTo(clientID model.ClientID, msg model.ToClient) {
	sink, ok := m.clients[clientID]
	if !ok {
		// Client raced a disconnect; nothing to reply to.
		return
	}
	m.deliver(clientID, sink, msg)
}

// deliver is a non-blocking send: a session that stopped draining its sink
// loses messages rather than stalling the manager. Drops are logged and
// shipped to the dead-letter topic when a feed is configured.
func (m *BookManager) deliver(clientID model.ClientID, sink chan model.ToClient, msg model.ToClient) bool {
	select {
	case sink <- msg:
		return true
	default:
		hlog.Warnf("[BookManager] sink full, dropping %T for client %d", msg, clientID)
		if m.feed != nil {
			m.feed.PublishDropped(clientID, msg)
		}
		return false
	}
}

// publishSideEffects pushes the new book state to the optional sidecars. The
// snapshot is taken synchronously (the loop owns the book); the I/O happens
// on the sidecar pool.
func (m *BookManager) publishSideEffects(updates []model.LatestDepth, p *model.Placement) {
	if m.feed == nil && m.cache == nil && m.audit == nil {
		return
	}
	if len(updates) == 0 && p == nil {
		return
	}
	if m.audit != nil && p != nil {
		m.audit.Record(*p)
	}
	var snap BookSnapshot
	if m.cache != nil {
		snap = BookSnapshot{Bids: m.book.Snapshot(model.Bid), Asks: m.book.Snapshot(model.Ask)}
	}
	feed, cache := m.feed, m.cache
	engine.Submit(func() {
		if feed != nil {
			for _, u := range updates {
				feed.PublishDepth(u)
			}
		}
		if cache != nil {
			cache.Store(snap)
		}
	})
}

func levelKey(side model.Side, price decimal.Decimal) string {
	return side.String() + "@" + price.String()
}
