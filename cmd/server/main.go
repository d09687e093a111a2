package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"

	"github.com/ArtemShamro/roadmap-generator/config"
	"github.com/ArtemShamro/roadmap-generator/internal/devproxy"
	"github.com/ArtemShamro/roadmap-generator/internal/embed"
	"github.com/ArtemShamro/roadmap-generator/internal/eventbus"
	"github.com/ArtemShamro/roadmap-generator/internal/handler"
	"github.com/ArtemShamro/roadmap-generator/internal/pkg/apiclient"
	"github.com/ArtemShamro/roadmap-generator/internal/pkg/database"
	"github.com/ArtemShamro/roadmap-generator/internal/repository"
	"github.com/ArtemShamro/roadmap-generator/internal/router"
	"github.com/ArtemShamro/roadmap-generator/internal/service/retention"
	"github.com/ArtemShamro/roadmap-generator/internal/service/roadmap"
	"github.com/ArtemShamro/roadmap-generator/internal/service/session"
	"github.com/ArtemShamro/roadmap-generator/internal/subscriber"
	"github.com/ArtemShamro/roadmap-generator/internal/view"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	// .env 不存在时忽略
	if err := godotenv.Load(); err == nil {
		klog.V(6).Info("已加载 .env")
	}

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if cfg.Database.Type != "mysql" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化后端客户端
	agentClient, err := newBackendClient(cfg, "agent", cfg.Backends.AgentURL)
	if err != nil {
		log.Fatalf("Failed to create agent client: %v", err)
	}
	simClient, err := newBackendClient(cfg, "sim", cfg.Backends.SimURL)
	if err != nil {
		log.Fatalf("Failed to create search client: %v", err)
	}

	// 初始化 Repository 与 Service
	sessionRepo := repository.NewSessionRepository(db)
	roadmapService := roadmap.NewService(agentClient, simClient, cfg.Backends.SearchK)
	sessionService := session.NewService(sessionRepo, roadmapService, cfg.Backends.SearchK)
	if cfg.Backends.WithCredentials {
		sessionService.EnableBackendCookies()
	}

	// 会话事件：记录指标与日志
	sessionBus := eventbus.NewSessionEventBus()
	subscriber.NewSessionEventSubscriber().Register(sessionBus)
	sessionService.SetEventBus(sessionBus)

	renderer, err := view.NewRenderer(embed.GetTemplatesFS())
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	// 初始化 Handler
	sessionHandler := handler.NewSessionHandler(sessionService, renderer, handler.SessionHandlerOptions{
		SubmitRPS:     cfg.Session.SubmitRPS,
		SubmitBurst:   cfg.Session.SubmitBurst,
		SubmitIPRPS:   cfg.Session.SubmitIPRPS,
		SubmitIPBurst: cfg.Session.SubmitIPBurst,
		LinkTemplate:  cfg.Articles.LinkTemplate,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 定期清理过期会话及其限流器、cookie 存储
	cleaner, err := retention.New(sessionRepo, cfg.Session.TTL, cfg.Session.CleanupCron,
		sessionHandler.PruneLimiters, sessionService.PruneCookieJars)
	if err != nil {
		log.Fatalf("Failed to configure session cleanup: %v", err)
	}
	cleaner.Start(ctx)

	var proxy *devproxy.Proxy
	if cfg.Proxy.Enabled {
		proxy, err = devproxy.New(
			devproxy.Route{Prefix: "/api/agent", Target: cfg.Proxy.AgentTarget},
			devproxy.Route{Prefix: "/api/sim", Target: cfg.Proxy.SimTarget},
		)
		if err != nil {
			log.Fatalf("Failed to configure dev proxy: %v", err)
		}
	}

	// 设置路由
	r := router.Setup(cfg, sessionHandler, proxy)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func newBackendClient(cfg *config.Config, name, rawURL string) (*apiclient.Client, error) {
	baseURL, err := cfg.ResolveBackendURL(rawURL)
	if err != nil {
		return nil, err
	}
	klog.V(6).Infof("后端地址: %s=%s", name, baseURL)
	// 服务端面向多个浏览器会话，cookie 由 session.Service 按会话保存，客户端不共享存储
	return apiclient.New(name, baseURL, apiclient.Options{
		Timeout: cfg.Backends.Timeout,
	})
}
