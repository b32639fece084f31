// Package protocol is the binary wire format shared by the websocket and raw
// TCP transports. One frame carries exactly one message: a type byte followed
// by a fixed-layout payload, all multi-byte integers big-endian. Prices
// travel as exact decimals (sign, exponent, coefficient bytes), never as
// floats.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"l2book/biz/model"
)

// Client to server.
const (
	MsgGetBookDepth         byte = 0x01
	MsgPlaceOrder           byte = 0x02
	MsgGetTopOfBook         byte = 0x03
	MsgGetSizeForPriceLevel byte = 0x04
)

// Server to client.
const (
	MsgConnected         byte = 0x81
	MsgLatestDepth       byte = 0x82
	MsgBookDepth         byte = 0x83
	MsgTopOfBook         byte = 0x84
	MsgSizeForPriceLevel byte = 0x85
	MsgError             byte = 0xff
)

const (
	sideBid byte = 0x00
	sideAsk byte = 0x01
)

// FrameHeaderLen is the length prefix used on the raw TCP transport. The
// websocket transport maps one frame to one binary message and carries no
// prefix.
const FrameHeaderLen = 4

// MaxFrameSize bounds what a peer may send; nothing in this protocol comes
// close.
const MaxFrameSize = 64 << 10

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrFrameTooLarge  = errors.New("frame exceeds size limit")
)

// AppendFrame appends payload to dst with the 4-byte length prefix.
func AppendFrame(dst, payload []byte) []byte {
	var header [FrameHeaderLen]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// PayloadLen decodes a length prefix and validates it against MaxFrameSize.
func PayloadLen(header []byte) (int, error) {
	if len(header) < FrameHeaderLen {
		return 0, ErrMalformedFrame
	}
	n := binary.BigEndian.Uint32(header)
	if n == 0 || n > MaxFrameSize {
		return 0, ErrFrameTooLarge
	}
	return int(n), nil
}

// EncodeToServer serializes a client request.
func EncodeToServer(msg model.ToServer) ([]byte, error) {
	switch m := msg.(type) {
	case model.GetBookDepth:
		return []byte{MsgGetBookDepth, sideByte(m.Side)}, nil
	case model.PlaceOrder:
		out := []byte{MsgPlaceOrder, sideByte(m.Side)}
		out = appendPrice(out, m.Price)
		return appendUint64(out, uint64(m.Quantity)), nil
	case model.GetTopOfBook:
		return []byte{MsgGetTopOfBook, sideByte(m.Side)}, nil
	case model.GetSizeForPriceLevel:
		out := []byte{MsgGetSizeForPriceLevel, sideByte(m.Side)}
		return appendPrice(out, m.Price), nil
	default:
		return nil, fmt.Errorf("unencodable request %T", msg)
	}
}

// DecodeToServer parses a client request frame. Anything unparseable is
// reported, never guessed at.
func DecodeToServer(frame []byte) (model.ToServer, error) {
	r := frameReader{buf: frame}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case MsgGetBookDepth:
		side, err := r.side()
		if err != nil {
			return nil, err
		}
		return finishToServer(model.GetBookDepth{Side: side}, &r)
	case MsgPlaceOrder:
		side, err := r.side()
		if err != nil {
			return nil, err
		}
		p, err := r.price()
		if err != nil {
			return nil, err
		}
		qty, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return finishToServer(model.PlaceOrder{Side: side, Price: p, Quantity: model.Quantity(qty)}, &r)
	case MsgGetTopOfBook:
		side, err := r.side()
		if err != nil {
			return nil, err
		}
		return finishToServer(model.GetTopOfBook{Side: side}, &r)
	case MsgGetSizeForPriceLevel:
		side, err := r.side()
		if err != nil {
			return nil, err
		}
		p, err := r.price()
		if err != nil {
			return nil, err
		}
		return finishToServer(model.GetSizeForPriceLevel{Side: side, Price: p}, &r)
	default:
		return nil, fmt.Errorf("%w: unknown request type 0x%02x", ErrMalformedFrame, tag)
	}
}

// EncodeToClient serializes a server message.
func EncodeToClient(msg model.ToClient) ([]byte, error) {
	switch m := msg.(type) {
	case model.Connected:
		return appendUint64([]byte{MsgConnected}, uint64(m.ClientID)), nil
	case model.LatestDepth:
		out := []byte{MsgLatestDepth, sideByte(m.Side)}
		out = appendUint64(out, uint64(m.Quantity))
		return appendPrice(out, m.Price), nil
	case model.BookDepth:
		out := []byte{MsgBookDepth, sideByte(m.Side)}
		return appendUint64(out, m.Count), nil
	case model.TopOfBook:
		out := []byte{MsgTopOfBook, sideByte(m.Side)}
		return appendPrice(out, m.Price), nil
	case model.SizeForPriceLevel:
		out := []byte{MsgSizeForPriceLevel, sideByte(m.Side)}
		return appendUint64(out, uint64(m.Quantity)), nil
	case model.ErrorReply:
		out := []byte{MsgError, byte(m.Code)}
		detail := []byte(m.Detail)
		if len(detail) > 0xffff {
			detail = detail[:0xffff]
		}
		var n [2]byte
		binary.BigEndian.PutUint16(n[:], uint16(len(detail)))
		out = append(out, n[:]...)
		return append(out, detail...), nil
	default:
		return nil, fmt.Errorf("unencodable reply %T", msg)
	}
}

// DecodeToClient parses a server message frame. Used by clients.
func DecodeToClient(frame []byte) (model.ToClient, error) {
	r := frameReader{buf: frame}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case MsgConnected:
		id, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return finishToClient(model.Connected{ClientID: model.ClientID(id)}, &r)
	case MsgLatestDepth:
		side, err := r.side()
		if err != nil {
			return nil, err
		}
		qty, err := r.uint64()
		if err != nil {
			return nil, err
		}
		p, err := r.price()
		if err != nil {
			return nil, err
		}
		return finishToClient(model.LatestDepth{Side: side, Quantity: model.Quantity(qty), Price: p}, &r)
	case MsgBookDepth:
		side, err := r.side()
		if err != nil {
			return nil, err
		}
		count, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return finishToClient(model.BookDepth{Side: side, Count: count}, &r)
	case MsgTopOfBook:
		side, err := r.side()
		if err != nil {
			return nil, err
		}
		p, err := r.price()
		if err != nil {
			return nil, err
		}
		return finishToClient(model.TopOfBook{Side: side, Price: p}, &r)
	case MsgSizeForPriceLevel:
		side, err := r.side()
		if err != nil {
			return nil, err
		}
		qty, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return finishToClient(model.SizeForPriceLevel{Side: side, Quantity: model.Quantity(qty)}, &r)
	case MsgError:
		code, err := r.byte()
		if err != nil {
			return nil, err
		}
		detail, err := r.lengthPrefixedString()
		if err != nil {
			return nil, err
		}
		return finishToClient(model.ErrorReply{Code: model.ErrorCode(code), Detail: detail}, &r)
	default:
		return nil, fmt.Errorf("%w: unknown reply type 0x%02x", ErrMalformedFrame, tag)
	}
}

func sideByte(s model.Side) byte {
	if s == model.Ask {
		return sideAsk
	}
	return sideBid
}

func appendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// appendPrice writes sign (1 byte), exponent (int32), coefficient length
// (uint16) and the coefficient magnitude bytes.
func appendPrice(dst []byte, d decimal.Decimal) []byte {
	var sign byte
	if d.Sign() < 0 {
		sign = 1
	}
	dst = append(dst, sign)
	var exp [4]byte
	binary.BigEndian.PutUint32(exp[:], uint32(d.Exponent()))
	dst = append(dst, exp[:]...)
	coeff := new(big.Int).Abs(d.Coefficient()).Bytes()
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(coeff)))
	dst = append(dst, n[:]...)
	return append(dst, coeff...)
}

type frameReader struct {
	buf []byte
	off int
}

func (r *frameReader) take(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("%w: truncated at offset %d", ErrMalformedFrame, r.off)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *frameReader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *frameReader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *frameReader) side() (model.Side, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	switch b {
	case sideBid:
		return model.Bid, nil
	case sideAsk:
		return model.Ask, nil
	default:
		return 0, fmt.Errorf("%w: bad side 0x%02x", ErrMalformedFrame, b)
	}
}

func (r *frameReader) price() (decimal.Decimal, error) {
	sign, err := r.byte()
	if err != nil {
		return decimal.Decimal{}, err
	}
	if sign > 1 {
		return decimal.Decimal{}, fmt.Errorf("%w: bad sign 0x%02x", ErrMalformedFrame, sign)
	}
	expBytes, err := r.take(4)
	if err != nil {
		return decimal.Decimal{}, err
	}
	exp := int32(binary.BigEndian.Uint32(expBytes))
	nBytes, err := r.take(2)
	if err != nil {
		return decimal.Decimal{}, err
	}
	coeffBytes, err := r.take(int(binary.BigEndian.Uint16(nBytes)))
	if err != nil {
		return decimal.Decimal{}, err
	}
	coeff := new(big.Int).SetBytes(coeffBytes)
	if sign == 1 {
		coeff.Neg(coeff)
	}
	return decimal.NewFromBigInt(coeff, exp), nil
}

func (r *frameReader) lengthPrefixedString() (string, error) {
	nBytes, err := r.take(2)
	if err != nil {
		return "", err
	}
	b, err := r.take(int(binary.BigEndian.Uint16(nBytes)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func finishToServer(msg model.ToServer, r *frameReader) (model.ToServer, error) {
	if err := r.done(); err != nil {
		return nil, err
	}
	return msg, nil
}

func finishToClient(msg model.ToClient, r *frameReader) (model.ToClient, error) {
	if err := r.done(); err != nil {
		return nil, err
	}
	return msg, nil
}

// done rejects trailing garbage after a complete message.
func (r *frameReader) done() error {
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d trailing byte(s)", ErrMalformedFrame, len(r.buf)-r.off)
	}
	return nil
}
