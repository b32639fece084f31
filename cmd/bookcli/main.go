// Command bookcli is an interactive client for the book server. It keeps a
// local level-2 view fed by LatestDepth broadcasts and accepts a small
// command grammar on stdin:
//
//	Ask -p 10 -q 2      place a sell order, price 10, quantity 2
//	Bid -p 9.9 -q 3     place a buy order
//	Depth -s Ask        number of ask levels
//	Top -s Bid          best bid
//	Size -s Ask -p 12.2 aggregate quantity at a level
//	loco                toggle a 20ms random-order spammer
//	quit                exit
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"l2book/biz/model"
	"l2book/biz/protocol"
	"l2book/biz/util"
)

var (
	addr    = flag.String("addr", "ws://127.0.0.1:8888/ws", "book server websocket URL")
	tcpAddr = flag.String("tcp", "", "connect over raw TCP instead, e.g. 127.0.0.1:8889")
)

// transport carries whole protocol frames in both directions.
type transport interface {
	writeFrame(frame []byte) error
	readFrame() ([]byte, error)
	Close() error
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) writeFrame(frame []byte) error {
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *wsTransport) readFrame() ([]byte, error) {
	for {
		mt, frame, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return frame, nil
		}
	}
}

func (t *wsTransport) Close() error { return t.conn.Close() }

type tcpTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

func (t *tcpTransport) writeFrame(frame []byte) error {
	_, err := t.conn.Write(protocol.AppendFrame(nil, frame))
	return err
}

func (t *tcpTransport) readFrame() ([]byte, error) {
	header := make([]byte, protocol.FrameHeaderLen)
	if _, err := io.ReadFull(t.r, header); err != nil {
		return nil, err
	}
	n, err := protocol.PayloadLen(header)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(t.r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (t *tcpTransport) Close() error { return t.conn.Close() }

func dial() (transport, error) {
	if *tcpAddr != "" {
		conn, err := net.Dial("tcp", *tcpAddr)
		if err != nil {
			return nil, err
		}
		return &tcpTransport{conn: conn, r: bufio.NewReader(conn)}, nil
	}
	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

type localBook struct {
	bids map[string]model.Quantity
	asks map[string]model.Quantity
}

func main() {
	flag.Parse()

	conn, err := dial()
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	send := make(chan model.ToServer, 64)
	go writeLoop(conn, send)
	go readLoop(conn)

	var loco atomic.Bool
	go spamLoop(&loco, send)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("connected, type a command (Ask/Bid/Depth/Top/Size/loco/quit)")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "quit", "exit":
			return
		case "loco":
			next := !loco.Load()
			loco.Store(next)
			fmt.Printf("loco = %v\n", next)
			continue
		}
		req, err := parseCommand(line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		send <- req
	}
}

func writeLoop(conn transport, send <-chan model.ToServer) {
	for req := range send {
		frame, err := protocol.EncodeToServer(req)
		if err != nil {
			fmt.Printf("encode error: %v\n", err)
			continue
		}
		if err := conn.writeFrame(frame); err != nil {
			log.Fatalf("write: %v", err)
		}
	}
}

func readLoop(conn transport) {
	book := &localBook{
		bids: make(map[string]model.Quantity),
		asks: make(map[string]model.Quantity),
	}
	for {
		frame, err := conn.readFrame()
		if err != nil {
			log.Fatalf("connection lost: %v", err)
		}
		msg, err := protocol.DecodeToClient(frame)
		if err != nil {
			fmt.Printf("bad frame from server: %v\n", err)
			continue
		}
		handle(book, msg)
	}
}

func handle(book *localBook, msg model.ToClient) {
	switch m := msg.(type) {
	case model.Connected:
		fmt.Printf("<- connected as client %d\n", m.ClientID)
	case model.LatestDepth:
		side := book.bids
		if m.Side == model.Ask {
			side = book.asks
		}
		key := m.Price.String()
		if m.Quantity == 0 {
			delete(side, key)
		} else {
			side[key] = m.Quantity
		}
		printBook(book)
	case model.BookDepth:
		fmt.Printf("<- depth %s: %d level(s)\n", m.Side, m.Count)
	case model.TopOfBook:
		fmt.Printf("<- top of %s: %s\n", m.Side, m.Price)
	case model.SizeForPriceLevel:
		fmt.Printf("<- size on %s: %d\n", m.Side, m.Quantity)
	case model.ErrorReply:
		fmt.Printf("<- error [%s]: %s\n", m.Code, m.Detail)
	default:
		fmt.Printf("<- %+v\n", msg)
	}
}

func printBook(book *localBook) {
	fmt.Printf("bids: %s\n", formatSide(book.bids, true))
	fmt.Printf("asks: %s\n", formatSide(book.asks, false))
}

func formatSide(levels map[string]model.Quantity, desc bool) string {
	prices := make([]decimal.Decimal, 0, len(levels))
	for key := range levels {
		p, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if desc {
			return prices[i].GreaterThan(prices[j])
		}
		return prices[i].LessThan(prices[j])
	})
	parts := make([]string, 0, len(prices))
	for _, p := range prices {
		parts = append(parts, fmt.Sprintf("%s x %d", p, levels[p.String()]))
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, ", ")
}

// parseCommand turns one input line into a request.
func parseCommand(line string) (model.ToServer, error) {
	fields := strings.Fields(line)
	flags, err := parseFlags(fields[1:])
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(fields[0]) {
	case "ask", "bid":
		side := model.Bid
		if strings.EqualFold(fields[0], "ask") {
			side = model.Ask
		}
		price, err := util.ParsePrice(flags["p"])
		if err != nil {
			return nil, err
		}
		qty, err := util.ParseQuantity(flags["q"])
		if err != nil {
			return nil, err
		}
		return model.PlaceOrder{Side: side, Price: price, Quantity: qty}, nil
	case "depth":
		side, err := util.ParseSide(flags["s"])
		if err != nil {
			return nil, err
		}
		return model.GetBookDepth{Side: side}, nil
	case "top":
		side, err := util.ParseSide(flags["s"])
		if err != nil {
			return nil, err
		}
		return model.GetTopOfBook{Side: side}, nil
	case "size":
		side, err := util.ParseSide(flags["s"])
		if err != nil {
			return nil, err
		}
		price, err := util.ParsePrice(flags["p"])
		if err != nil {
			return nil, err
		}
		return model.GetSizeForPriceLevel{Side: side, Price: price}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
}

func parseFlags(fields []string) (map[string]string, error) {
	flags := make(map[string]string)
	for i := 0; i < len(fields); i++ {
		if !strings.HasPrefix(fields[i], "-") {
			return nil, fmt.Errorf("expected a flag, got %q", fields[i])
		}
		if i+1 >= len(fields) {
			return nil, fmt.Errorf("flag %s needs a value", fields[i])
		}
		flags[strings.TrimPrefix(fields[i], "-")] = fields[i+1]
		i++
	}
	return flags, nil
}

// spamLoop places a random order every 20ms while loco is on.
func spamLoop(loco *atomic.Bool, send chan<- model.ToServer) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if !loco.Load() {
			continue
		}
		side := model.Bid
		if rand.Intn(2) == 1 {
			side = model.Ask
		}
		send <- model.PlaceOrder{
			Side:     side,
			Price:    decimal.New(int64(rand.Intn(2000)+1), -1),
			Quantity: model.Quantity(rand.Intn(9) + 1),
		}
	}
}
