package embed

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

//go:embed ui/templates/*.html ui/static/*
var embeddedFiles embed.FS

// GetTemplatesFS 获取页面模板（templates/*.html）
func GetTemplatesFS() fs.FS {
	sub, err := fs.Sub(embeddedFiles, "ui")
	if err != nil {
		// 目录在编译期嵌入，不会失败
		panic(err)
	}
	return sub
}

// SetupRouter 设置静态文件路由
func SetupRouter(r *gin.Engine) {
	// 添加 gzip 压缩中间件，使用最佳压缩级别
	r.Use(gzip.Gzip(gzip.BestCompression))

	staticFS, err := fs.Sub(embeddedFiles, "ui/static")
	if err == nil {
		r.GET("/static/*filepath", gin.WrapH(http.StripPrefix("/static", http.FileServer(http.FS(staticFS)))))
	}

	r.NoRoute(func(c *gin.Context) {
		// 对于API请求，返回JSON 404
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	})
}
