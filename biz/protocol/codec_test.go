package protocol

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"l2book/biz/model"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return v
}

func TestRequestRoundTrip(t *testing.T) {
	reqs := []model.ToServer{
		model.GetBookDepth{Side: model.Bid},
		model.GetBookDepth{Side: model.Ask},
		model.PlaceOrder{Side: model.Ask, Price: d(t, "10.5"), Quantity: 42},
		model.PlaceOrder{Side: model.Bid, Price: d(t, "-3.25"), Quantity: 1},
		model.GetTopOfBook{Side: model.Bid},
		model.GetSizeForPriceLevel{Side: model.Ask, Price: d(t, "0.0000001")},
	}
	for _, req := range reqs {
		frame, err := EncodeToServer(req)
		if err != nil {
			t.Fatalf("encode %T: %v", req, err)
		}
		got, err := DecodeToServer(frame)
		if err != nil {
			t.Fatalf("decode %T: %v", req, err)
		}
		switch want := req.(type) {
		case model.PlaceOrder:
			gp := got.(model.PlaceOrder)
			if gp.Side != want.Side || gp.Quantity != want.Quantity || !gp.Price.Equal(want.Price) {
				t.Errorf("round trip = %+v, want %+v", gp, want)
			}
		case model.GetSizeForPriceLevel:
			gs := got.(model.GetSizeForPriceLevel)
			if gs.Side != want.Side || !gs.Price.Equal(want.Price) {
				t.Errorf("round trip = %+v, want %+v", gs, want)
			}
		default:
			if got != req {
				t.Errorf("round trip = %+v, want %+v", got, req)
			}
		}
	}
}

func TestReplyRoundTrip(t *testing.T) {
	replies := []model.ToClient{
		model.Connected{ClientID: 7},
		model.LatestDepth{Side: model.Bid, Quantity: 12, Price: d(t, "99.99")},
		model.LatestDepth{Side: model.Ask, Quantity: 0, Price: d(t, "100")},
		model.BookDepth{Side: model.Ask, Count: 3},
		model.TopOfBook{Side: model.Bid, Price: d(t, "10")},
		model.SizeForPriceLevel{Side: model.Ask, Quantity: 5},
		model.ErrorReply{Code: model.CodeOvertrade, Detail: "cannot trade 6, only 1 resting"},
	}
	for _, reply := range replies {
		frame, err := EncodeToClient(reply)
		if err != nil {
			t.Fatalf("encode %T: %v", reply, err)
		}
		got, err := DecodeToClient(frame)
		if err != nil {
			t.Fatalf("decode %T: %v", reply, err)
		}
		switch want := reply.(type) {
		case model.LatestDepth:
			gd := got.(model.LatestDepth)
			if gd.Side != want.Side || gd.Quantity != want.Quantity || !gd.Price.Equal(want.Price) {
				t.Errorf("round trip = %+v, want %+v", gd, want)
			}
		case model.TopOfBook:
			gt := got.(model.TopOfBook)
			if gt.Side != want.Side || !gt.Price.Equal(want.Price) {
				t.Errorf("round trip = %+v, want %+v", gt, want)
			}
		default:
			if got != reply {
				t.Errorf("round trip = %+v, want %+v", got, reply)
			}
		}
	}
}

func TestPriceExactness(t *testing.T) {
	// A value float64 cannot hold exactly must survive the wire untouched.
	in := d(t, "0.1000000000000000000000000001")
	frame, err := EncodeToServer(model.GetSizeForPriceLevel{Side: model.Bid, Price: in})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeToServer(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := got.(model.GetSizeForPriceLevel).Price
	if out.String() != in.String() {
		t.Errorf("price = %s, want %s", out, in)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := [][]byte{
		{},                         // empty
		{0x7e},                     // unknown type
		{MsgGetBookDepth},          // missing side
		{MsgGetBookDepth, 0x02},    // bad side
		{MsgPlaceOrder, 0x00, 0x00}, // truncated price
		{MsgGetBookDepth, 0x00, 0x00}, // trailing byte
	}
	for _, frame := range cases {
		if _, err := DecodeToServer(frame); err == nil {
			t.Errorf("DecodeToServer(% x) succeeded, want error", frame)
		}
	}
	if _, err := DecodeToServer([]byte{MsgPlaceOrder, 0x00, 0x00}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestFraming(t *testing.T) {
	payload := []byte{MsgGetBookDepth, 0x00}
	frame := AppendFrame(nil, payload)
	if len(frame) != FrameHeaderLen+len(payload) {
		t.Fatalf("frame len = %d", len(frame))
	}
	n, err := PayloadLen(frame[:FrameHeaderLen])
	if err != nil {
		t.Fatalf("PayloadLen: %v", err)
	}
	if n != len(payload) {
		t.Errorf("payload len = %d, want %d", n, len(payload))
	}

	if _, err := PayloadLen([]byte{0x00, 0x00}); err == nil {
		t.Error("short header accepted")
	}
	oversized := AppendFrame(nil, make([]byte, MaxFrameSize+1))
	if _, err := PayloadLen(oversized[:FrameHeaderLen]); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("err = %v, want ErrFrameTooLarge", err)
	}
}
