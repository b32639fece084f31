package main

import (
	"context"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzap "github.com/hertz-contrib/logger/zap"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"l2book/biz/dal"
	"l2book/biz/engine"
	"l2book/biz/service"
	"l2book/biz/util"
	"l2book/conf"
	"l2book/server"
)

func main() {
	_ = godotenv.Load()
	cfg := conf.GetConf()

	initLogger(cfg)
	dal.Init()
	if err := engine.InitSidecarPool(1024); err != nil {
		hlog.Warnf("sidecar pool init failed, side effects run unpooled: %v", err)
	}

	mgr := service.NewBookManager(service.ManagerConfig{
		InboxSize: cfg.Book.InboxSize,
		Heartbeat: cfg.Book.Heartbeat(),
	}, service.NewDepthFeed(), service.NewBookCache(), service.NewPlacementAudit())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go mgr.Run(ctx)
	go service.ConsumeFills(ctx, mgr)

	registerNode(cfg)

	tcpSrv := server.NewTCPServer(mgr, cfg.TCP.Address)
	go func() {
		if err := tcpSrv.Run(ctx); err != nil {
			hlog.Errorf("tcp server exited: %v", err)
		}
	}()

	h := server.NewWebSocketServer(mgr, cfg.Hertz.Address)
	h.Spin()
}

func initLogger(cfg *conf.Config) {
	hlog.SetLogger(hertzzap.NewLogger())
	hlog.SetLevel(conf.LogLevel())
	if cfg.Hertz.LogFileName == "" {
		return
	}
	asyncWriter := &zapcore.BufferedWriteSyncer{
		WS: zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Hertz.LogFileName,
			MaxSize:    cfg.Hertz.LogMaxSize,
			MaxBackups: cfg.Hertz.LogMaxBackups,
			MaxAge:     cfg.Hertz.LogMaxAge,
		}),
		FlushInterval: time.Minute,
	}
	hlog.SetOutput(asyncWriter)
}

// registerNode puts this server into consul when a registry is configured.
func registerNode(cfg *conf.Config) {
	if len(cfg.Registry.RegistryAddress) == 0 {
		return
	}
	helper, err := service.NewConsulHelperWithAddrs(cfg.Registry.RegistryAddress)
	if err != nil {
		hlog.Errorf("consul unavailable, running unregistered: %v", err)
		return
	}
	host := util.GetLocalIP()
	port := tcpPort(cfg.TCP.Address)
	nodeID := cfg.Hertz.Service + "-" + host
	if err := helper.RegisterBookNode(nodeID, host, port); err != nil {
		hlog.Errorf("consul registration failed: %v", err)
		return
	}
	hlog.Infof("registered %s with consul", nodeID)
}

func tcpPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
