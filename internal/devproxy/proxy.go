// Package devproxy 开发环境下把 /api/agent 与 /api/sim 转发到本地后端
package devproxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

// Route 一条转发规则：去掉 Prefix 后转发到 Target
type Route struct {
	Prefix string
	Target string
}

// Proxy 反向代理集合
type Proxy struct {
	routes []route
}

type route struct {
	prefix string
	target *url.URL
	proxy  *httputil.ReverseProxy
}

// New 创建代理，Target 必须是绝对地址
func New(routes ...Route) (*Proxy, error) {
	p := &Proxy{}
	for _, r := range routes {
		target, err := url.Parse(r.Target)
		if err != nil {
			return nil, fmt.Errorf("解析代理目标失败: %s: %w", r.Target, err)
		}
		if !target.IsAbs() || target.Host == "" {
			return nil, fmt.Errorf("代理目标必须是绝对地址: %s", r.Target)
		}
		prefix := "/" + strings.Trim(r.Prefix, "/")
		p.routes = append(p.routes, route{
			prefix: prefix,
			target: target,
			proxy:  newReverseProxy(prefix, target),
		})
	}
	return p, nil
}

func newReverseProxy(prefix string, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			path := strings.TrimPrefix(pr.In.URL.Path, prefix)
			if path == "" {
				path = "/"
			}
			pr.Out.URL.Path = singleJoin(target.Path, path)
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			klog.Warningf("[devproxy] 转发失败: %s %s -> %s: %v", r.Method, r.URL.Path, target, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
		},
	}
}

func singleJoin(base, path string) string {
	if base == "" || base == "/" {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// RegisterRoutes 为每个前缀注册 ANY 路由
func (p *Proxy) RegisterRoutes(r gin.IRouter) {
	for _, rt := range p.routes {
		handler := gin.WrapH(rt.proxy)
		r.Any(rt.prefix+"/*path", handler)
		klog.V(6).Infof("注册开发代理: %s -> %s", rt.prefix, rt.target)
	}
}
