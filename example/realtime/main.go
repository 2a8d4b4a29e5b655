package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tokmz/tablesplit/pkg/config"
	"github.com/tokmz/tablesplit/pkg/logger"
	"github.com/tokmz/tablesplit/pkg/realtime"
	"github.com/tokmz/tablesplit/pkg/realtime/admin"
	"github.com/tokmz/tablesplit/pkg/realtime/wsclient"
	"github.com/tokmz/tablesplit/pkg/tracing"
)

func main() {
	path := "example/realtime/config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1. 配置（热更新）
	var log logger.Logger
	cfg := config.New(
		config.WithConfigFile(path),
		config.WithEnvPrefix("TABLESPLIT"),
		config.WithAutoWatch(true),
		config.WithDefaults(map[string]any{
			"server.addr":            ":8080",
			"server.request_timeout": "35s",
			"log.level":              "info",
		}),
		config.WithOnError(func(err error) {
			if log != nil {
				log.Error("config watch error", zap.Error(err))
			}
		}),
	)
	if err := cfg.Load(); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	defer cfg.Close()
	config.SetDefault(cfg)

	// 2. 日志
	var ls logger.Settings
	if err := cfg.UnmarshalKey("log", &ls); err != nil {
		panic(fmt.Sprintf("invalid log config: %v", err))
	}
	opts, err := ls.Options()
	if err != nil {
		panic(err)
	}
	log, err = logger.NewWithOptions(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer log.Sync()

	// 3. 链路追踪
	tcfg := tracing.DefaultConfig()
	if err := cfg.UnmarshalKey("tracing", tcfg); err != nil {
		log.Fatal("invalid tracing config", zap.Error(err))
	}
	if _, err := tracing.NewTracerProvider(tcfg); err != nil {
		log.Fatal("failed to create tracer provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(ctx)
	}()

	// 4. 连接管理器
	reg, err := buildRegistry(cfg, log)
	if err != nil {
		log.Fatal("failed to build realtime registry", zap.Error(err))
	}
	reg = realtime.SetDefault(reg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = realtime.Default().Close(ctx)
	}()

	m, err := reg.Manager()
	if err != nil {
		log.Fatal("failed to create realtime manager", zap.Error(err))
	}
	m.Subscribe(realtime.EventStateChanged, func(e realtime.Event) {
		log.Info("realtime state", zap.Stringer("from", e.From), zap.Stringer("to", e.To), zap.String("user_id", e.UserID))
	})
	_ = m.Handle("console.orders", realtime.ChannelHandlerFunc(func(ev realtime.ChannelEvent) {
		log.Debug("channel event", zap.String("channel_url", ev.ChannelURL), zap.String("type", ev.Type))
	}))

	// 配置变更：重新进入初始化流程，拿回同一个 Manager
	cfg.OnChange(func() {
		if lvl, err := logger.ParseLevel(cfg.GetString("log.level")); err == nil {
			log.SetLevel(lvl)
		}
		next, err := buildRegistry(cfg, log)
		if err != nil {
			log.Warn("realtime config reload rejected", zap.Error(err))
			return
		}
		same, err := realtime.SetDefault(next).Manager()
		if err != nil {
			log.Warn("realtime manager unavailable after reload", zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.Bool("same_manager", same == m), zap.Stringer("state", same.State()))
	})

	// 5. HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), tracing.Middleware("/metrics"), logger.Middleware(log),
		admin.Timeout(cfg.GetDuration("server.request_timeout"), "/metrics"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	admin.New(realtime.Default().Manager, log).Register(r)

	srv := &http.Server{Addr: cfg.GetString("server.addr"), Handler: r}
	go func() {
		log.Info("admin server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

var metrics *realtime.PrometheusMetrics

// buildRegistry 按当前配置组装注册表
func buildRegistry(cfg *config.Config, log logger.Logger) (*realtime.Registry, error) {
	rtCfg, err := realtime.LoadConfig(cfg)
	if err != nil {
		return nil, err
	}

	if metrics == nil {
		if metrics, err = realtime.NewPrometheusMetrics(prometheus.DefaultRegisterer, "tablesplit"); err != nil {
			return nil, err
		}
	}

	opts := []realtime.Option{
		realtime.WithConfig(rtCfg),
		realtime.WithConstructor(wsclient.Constructor()),
		realtime.WithLogger(log),
		realtime.WithMetrics(metrics),
	}
	if rtCfg.Redis != nil && !realtime.Default().Loaded() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := realtime.OpenRedisStore(ctx, rtCfg.Redis)
		if err != nil {
			return nil, err
		}
		opts = append(opts, realtime.WithTimestampStore(store))
	}
	return realtime.NewRegistry(opts...), nil
}
