package server

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/netpoll"

	"l2book/biz/engine"
	"l2book/biz/protocol"
	"l2book/biz/service"
	"l2book/conf"
)

type sessionKeyType struct{}

var sessionKey sessionKeyType

// TCPServer is the raw byte-stream transport: the same protocol frames as
// the websocket endpoint, carried with a 4-byte big-endian length prefix.
type TCPServer struct {
	mgr  *service.BookManager
	addr string
}

func NewTCPServer(mgr *service.BookManager, addr string) *TCPServer {
	return &TCPServer{mgr: mgr, addr: addr}
}

// Run serves until ctx is cancelled.
func (s *TCPServer) Run(ctx context.Context) error {
	listener, err := netpoll.CreateListener("tcp", s.addr)
	if err != nil {
		return err
	}
	eventLoop, err := netpoll.NewEventLoop(
		s.onRequest,
		netpoll.WithOnConnect(s.onConnect),
	)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if err := eventLoop.Shutdown(context.Background()); err != nil {
			hlog.Errorf("[TCP] shutdown: %v", err)
		}
	}()
	hlog.Infof("[TCP] listening on %s", s.addr)
	return eventLoop.Serve(listener)
}

func (s *TCPServer) onConnect(ctx context.Context, conn netpoll.Connection) context.Context {
	sess := NewSession(s.mgr, conf.GetConf().Book.SinkSize)
	go sess.Serve(func(frame []byte) error {
		buf := engine.BufferPool.Get().(*bytes.Buffer)
		defer engine.BufferPool.Put(buf)
		buf.Reset()
		var header [protocol.FrameHeaderLen]byte
		binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
		buf.Write(header[:])
		buf.Write(frame)
		_, err := conn.Write(buf.Bytes())
		return err
	})
	_ = conn.AddCloseCallback(func(netpoll.Connection) error {
		sess.Close()
		return nil
	})
	hlog.Infof("[TCP] connection from %v", conn.RemoteAddr())
	return context.WithValue(ctx, sessionKey, sess)
}

// onRequest drains every complete frame currently buffered. A partial frame
// stays in the reader until more bytes arrive; a frame that violates the
// size limit or fails to decode kills the connection.
func (s *TCPServer) onRequest(ctx context.Context, conn netpoll.Connection) error {
	sess, ok := ctx.Value(sessionKey).(*Session)
	if !ok {
		return conn.Close()
	}
	reader := conn.Reader()
	for {
		if reader.Len() < protocol.FrameHeaderLen {
			return reader.Release()
		}
		header, err := reader.Peek(protocol.FrameHeaderLen)
		if err != nil {
			return err
		}
		n, err := protocol.PayloadLen(header)
		if err != nil {
			hlog.Warnf("[TCP] bad frame header from %v: %v", conn.RemoteAddr(), err)
			return conn.Close()
		}
		if reader.Len() < protocol.FrameHeaderLen+n {
			return reader.Release()
		}
		if err := reader.Skip(protocol.FrameHeaderLen); err != nil {
			return err
		}
		payload, err := reader.Next(n)
		if err != nil {
			return err
		}
		frame := make([]byte, n)
		copy(frame, payload)
		if err := reader.Release(); err != nil {
			return err
		}
		if err := sess.HandleFrame(frame); err != nil {
			return conn.Close()
		}
	}
}
