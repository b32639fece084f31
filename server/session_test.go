package server

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"l2book/biz/model"
	"l2book/biz/protocol"
	"l2book/biz/service"
)

type frameSink struct {
	frames chan []byte
}

func (f *frameSink) write(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.frames <- cp
	return nil
}

func (f *frameSink) next(t *testing.T) model.ToClient {
	t.Helper()
	select {
	case frame := <-f.frames:
		msg, err := protocol.DecodeToClient(frame)
		if err != nil {
			t.Fatalf("decode outbound frame: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for an outbound frame")
		return nil
	}
}

func newManager(t *testing.T) *service.BookManager {
	t.Helper()
	mgr := service.NewBookManager(service.ManagerConfig{InboxSize: 64, Heartbeat: time.Hour}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mgr.Run(ctx)
	return mgr
}

func startSessionOn(t *testing.T, mgr *service.BookManager) (*Session, *frameSink) {
	t.Helper()
	sess := NewSession(mgr, 64)
	sink := &frameSink{frames: make(chan []byte, 64)}
	go sess.Serve(sink.write)
	return sess, sink
}

func startSession(t *testing.T) (*Session, *frameSink) {
	t.Helper()
	return startSessionOn(t, newManager(t))
}

func encodeRequest(t *testing.T, req model.ToServer) []byte {
	t.Helper()
	frame, err := protocol.EncodeToServer(req)
	if err != nil {
		t.Fatalf("encode %T: %v", req, err)
	}
	return frame
}

func TestSessionGreetsThenRoutes(t *testing.T) {
	sess, sink := startSession(t)

	hello, ok := sink.next(t).(model.Connected)
	if !ok {
		t.Fatal("first outbound message is not Connected")
	}
	if hello.ClientID != 0 {
		t.Errorf("client id = %d, want 0", hello.ClientID)
	}

	if err := sess.HandleFrame(encodeRequest(t, model.GetBookDepth{Side: model.Ask})); err != nil {
		t.Fatalf("depth query: %v", err)
	}
	if msg := sink.next(t); msg != (model.BookDepth{Side: model.Ask, Count: 0}) {
		t.Errorf("depth reply = %+v", msg)
	}
}

func TestSessionMalformedFrameDisconnects(t *testing.T) {
	mgr := newManager(t)
	sess, sink := startSessionOn(t, mgr)
	sink.next(t) // Connected
	_, watcher := startSessionOn(t, mgr)
	watcher.next(t) // Connected

	if err := sess.HandleFrame(encodeRequest(t, model.PlaceOrder{Side: model.Bid, Price: mustPrice(t, "10"), Quantity: 3})); err != nil {
		t.Fatalf("place: %v", err)
	}
	if depth, ok := watcher.next(t).(model.LatestDepth); !ok || depth.Quantity != 3 {
		t.Fatalf("placement broadcast = %+v", depth)
	}
	sink.next(t) // the placing client sees the same broadcast

	// An undecodable frame ends the session, and the disconnect cleanup
	// cancels its resting order.
	if err := sess.HandleFrame([]byte{0x7e, 0x00}); err == nil {
		t.Fatal("malformed frame did not report an error")
	}
	depth, ok := watcher.next(t).(model.LatestDepth)
	if !ok || depth.Side != model.Bid || depth.Quantity != 0 {
		t.Fatalf("cancel broadcast = %+v", depth)
	}
	sess.Close() // already closed by the bad frame, stays idempotent
}

func TestSessionCloseCancelsOrders(t *testing.T) {
	sess, sink := startSession(t)
	sink.next(t) // Connected

	if err := sess.HandleFrame(encodeRequest(t, model.PlaceOrder{Side: model.Bid, Price: mustPrice(t, "10"), Quantity: 3})); err != nil {
		t.Fatalf("place: %v", err)
	}
	depth, ok := sink.next(t).(model.LatestDepth)
	if !ok || depth.Quantity != 3 {
		t.Fatalf("placement broadcast = %+v", depth)
	}

	sess.Close()
	sess.Close() // idempotent
}

func mustPrice(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	p, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad price literal %q: %v", s, err)
	}
	return p
}
