package server

import (
	"sync"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"l2book/biz/model"
	"l2book/biz/protocol"
	"l2book/biz/service"
)

// Session bridges one transport connection to the book manager. The transport
// feeds inbound frames through HandleFrame and runs Serve on its writer
// goroutine; the session owns nothing else about the connection.
//
// The first message out of the manager is always Connected. HandleFrame gates
// on it so no request can be attributed before the client id is known, and
// Close waits for it so a connection that dies mid-handshake still gets its
// registry entry torn down.
type Session struct {
	mgr      *service.BookManager
	sink     chan model.ToClient
	ready    chan struct{}
	clientID model.ClientID

	closeOnce sync.Once
}

func NewSession(mgr *service.BookManager, sinkSize int) *Session {
	if sinkSize <= 0 {
		sinkSize = 256
	}
	s := &Session{
		mgr:   mgr,
		sink:  make(chan model.ToClient, sinkSize),
		ready: make(chan struct{}),
	}
	mgr.Connect(s.sink)
	return s
}

// Serve pumps outbound messages through write until the manager closes the
// sink or a write fails. write must be safe to call from this goroutine only;
// nothing else in the session writes to the transport.
func (s *Session) Serve(write func(frame []byte) error) {
	for msg := range s.sink {
		if hello, isHello := msg.(model.Connected); isHello {
			s.clientID = hello.ClientID
			close(s.ready)
		}
		if !s.push(write, msg) {
			return
		}
	}
}

func (s *Session) push(write func(frame []byte) error, msg model.ToClient) bool {
	frame, err := protocol.EncodeToClient(msg)
	if err != nil {
		hlog.Errorf("[Session] encode %T failed: %v", msg, err)
		return true
	}
	if err := write(frame); err != nil {
		hlog.Warnf("[Session] write to client %d failed: %v", s.clientID, err)
		s.Close()
		return false
	}
	return true
}

// HandleFrame decodes one inbound frame and routes the request to the
// manager. A frame that fails to decode is terminal: the session is closed,
// its orders are cancelled, and the returned error tells the transport to
// drop the connection.
func (s *Session) HandleFrame(frame []byte) error {
	<-s.ready
	req, err := protocol.DecodeToServer(frame)
	if err != nil {
		hlog.Warnf("[Session] client %d sent malformed frame, disconnecting: %v", s.clientID, err)
		s.Close()
		return err
	}
	switch m := req.(type) {
	case model.GetBookDepth:
		s.mgr.QueryBookDepth(s.clientID, m.Side)
	case model.PlaceOrder:
		s.mgr.Place(s.clientID, m.Side, m.Price, m.Quantity)
	case model.GetTopOfBook:
		s.mgr.QueryTopOfBook(s.clientID, m.Side)
	case model.GetSizeForPriceLevel:
		s.mgr.QuerySizeForPriceLevel(s.clientID, m.Side, m.Price)
	default:
		hlog.Errorf("[Session] unroutable request %T", req)
	}
	return nil
}

// Close reports the disconnect to the manager exactly once. The manager
// cancels the client's orders and closes the sink, which ends Serve.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		<-s.ready
		s.mgr.Disconnect(s.clientID)
	})
}
