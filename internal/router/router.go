package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ArtemShamro/roadmap-generator/config"
	"github.com/ArtemShamro/roadmap-generator/internal/devproxy"
	"github.com/ArtemShamro/roadmap-generator/internal/embed"
	"github.com/ArtemShamro/roadmap-generator/internal/handler"
)

// Setup 组装路由。proxy 为 nil 时不注册开发代理。
func Setup(
	cfg *config.Config,
	sessionHandler *handler.SessionHandler,
	proxy *devproxy.Proxy,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 开发代理必须在压缩中间件之前注册，透传上游响应
	if proxy != nil {
		proxy.RegisterRoutes(r)
	}

	// 设置静态文件路由（嵌入式），之后注册的路由启用 gzip
	embed.SetupRouter(r)

	sessions := r.Group("")
	sessions.Use(handler.SessionMiddleware())
	sessionHandler.RegisterRoutes(sessions)

	return r
}
