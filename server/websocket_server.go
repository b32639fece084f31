package server

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	hertzserver "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/hertz-contrib/cors"
	"github.com/hertz-contrib/gzip"
	"github.com/hertz-contrib/logger/accesslog"
	"github.com/hertz-contrib/pprof"
	"github.com/hertz-contrib/websocket"

	"l2book/biz/handler"
	"l2book/biz/service"
	"l2book/conf"
)

var upgrader = websocket.HertzUpgrader{
	CheckOrigin: func(ctx *app.RequestContext) bool {
		return true
	},
}

// NewWebSocketServer builds the hertz server carrying the /ws endpoint and
// the REST query surface. One websocket binary message is one protocol
// frame, no extra length prefix.
func NewWebSocketServer(mgr *service.BookManager, addr string) *hertzserver.Hertz {
	hertzConf := conf.GetConf().Hertz
	h := hertzserver.Default(hertzserver.WithHostPorts(addr))
	h.NoHijackConnPool = true

	h.Use(cors.Default())
	if hertzConf.EnableGzip {
		h.Use(gzip.Gzip(gzip.DefaultCompression))
	}
	if hertzConf.EnableAccessLog {
		h.Use(accesslog.New())
	}
	if hertzConf.EnablePprof {
		pprof.Register(h)
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
			sess := NewSession(mgr, conf.GetConf().Book.SinkSize)
			writerDone := make(chan struct{})
			go func() {
				defer close(writerDone)
				sess.Serve(func(frame []byte) error {
					return conn.WriteMessage(websocket.BinaryMessage, frame)
				})
			}()

			for {
				mt, frame, err := conn.ReadMessage()
				if err != nil {
					hlog.Infof("[WS] read ended: %v", err)
					break
				}
				if mt != websocket.BinaryMessage {
					hlog.Warnf("[WS] non-binary message from %v, ignored", conn.RemoteAddr())
					continue
				}
				if err := sess.HandleFrame(frame); err != nil {
					break
				}
			}
			sess.Close()
			<-writerDone
			_ = conn.Close()
		})
		if err != nil {
			hlog.Errorf("[WS] upgrade error: %v", err)
		}
	})

	mh := handler.NewMarketHandler(mgr)
	api := h.Group("/api")
	api.GET("/depth", mh.GetDepth)
	api.GET("/top", mh.GetTopOfBook)
	api.GET("/size", mh.GetSizeForPriceLevel)
	api.GET("/placements", mh.ListPlacements)

	return h
}
