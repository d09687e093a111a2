package handler

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/ArtemShamro/roadmap-generator/internal/domain"
	"github.com/ArtemShamro/roadmap-generator/internal/service/session"
	"github.com/ArtemShamro/roadmap-generator/internal/view"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

// TooManyRequestsText 提交过于频繁时的提示
const TooManyRequestsText = "Слишком много запросов, попробуйте позже"

// SessionHandler 页面与会话 API
type SessionHandler struct {
	sessions     *session.Service
	renderer     *view.Renderer
	limiter      *limiterPool
	// ipLimiter 按客户端 IP 限流，丢弃 cookie 也绕不过去
	ipLimiter    *limiterPool
	linkTemplate string
}

// SessionHandlerOptions 限流与文章链接配置
type SessionHandlerOptions struct {
	SubmitRPS   float64
	SubmitBurst int
	// SubmitIPRPS / SubmitIPBurst 同一客户端 IP 的提交上限，默认 5/10
	SubmitIPRPS   float64
	SubmitIPBurst int
	LinkTemplate  string
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions *session.Service, renderer *view.Renderer, opts SessionHandlerOptions) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		renderer:     renderer,
		limiter:      newLimiterPool(opts.SubmitRPS, opts.SubmitBurst),
		ipLimiter:    newIPLimiterPool(opts.SubmitIPRPS, opts.SubmitIPBurst),
		linkTemplate: opts.LinkTemplate,
	}
}

// RegisterRoutes 注册页面和 JSON 路由
func (h *SessionHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Page)
	r.POST("/submit", h.SubmitForm)
	r.POST("/reset", h.ResetForm)
	r.POST("/steps/:key", h.OpenStepForm)
	r.POST("/panel/close", h.ClosePanelForm)

	api := r.Group("/api/session")
	{
		api.GET("", h.Get)
		api.POST("/submit", h.Submit)
		api.POST("/reset", h.Reset)
		api.POST("/steps/:key", h.OpenStep)
		api.DELETE("/panel", h.ClosePanel)
	}
}

// PruneLimiters 清理不再活跃会话的限流器
func (h *SessionHandler) PruneLimiters(cutoff time.Time) {
	if removed := h.limiter.Prune(cutoff) + h.ipLimiter.Prune(cutoff); removed > 0 {
		klog.V(6).Infof("清理限流器: removed=%d", removed)
	}
}

// allowSubmit 同时检查客户端 IP 和会话的提交频率
func (h *SessionHandler) allowSubmit(c *gin.Context, id string) bool {
	if !h.ipLimiter.Allow(c.ClientIP()) {
		klog.V(6).Infof("客户端提交过于频繁: ip=%s", c.ClientIP())
		return false
	}
	return h.limiter.Allow(id)
}

// Page 渲染页面
func (h *SessionHandler) Page(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		klog.Errorf("[handler.Page] 读取会话失败: %v", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	h.renderPage(c, http.StatusOK, view.NewPage(sess, h.linkTemplate))
}

// SubmitForm 表单提交命令
func (h *SessionHandler) SubmitForm(c *gin.Context) {
	id := sessionID(c)
	command := c.PostForm("command")

	if !h.allowSubmit(c, id) {
		sess, err := h.sessions.SaveDraft(c.Request.Context(), id, command)
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		page := view.NewPage(sess, h.linkTemplate)
		page.Error = TooManyRequestsText
		h.renderPage(c, http.StatusTooManyRequests, page)
		return
	}

	sess, err := h.sessions.Submit(c.Request.Context(), id, command)
	if err != nil && sess == nil {
		klog.Errorf("[handler.SubmitForm] 提交失败: %v", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	// 后端失败时错误信息已记录在会话中
	h.redirectHome(c)
}

// ResetForm 表单重置
func (h *SessionHandler) ResetForm(c *gin.Context) {
	if _, err := h.sessions.Reset(c.Request.Context(), sessionID(c)); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	h.redirectHome(c)
}

// OpenStepForm 点击步骤
func (h *SessionHandler) OpenStepForm(c *gin.Context) {
	key := c.Param("key")
	if _, err := h.sessions.OpenStep(c.Request.Context(), sessionID(c), key); err != nil {
		if !errors.Is(err, domain.ErrStepNotFound) {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		// 页面过期（roadmap 已被更新），直接回到最新页面
		klog.V(6).Infof("步骤不存在: key=%s", key)
	}
	h.redirectHome(c)
}

// ClosePanelForm 关闭侧边栏
func (h *SessionHandler) ClosePanelForm(c *gin.Context) {
	if _, err := h.sessions.ClosePanel(c.Request.Context(), sessionID(c)); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	h.redirectHome(c)
}

// Get 返回会话状态
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, sess)
}

// Submit 提交命令：未绑定时生成，已绑定时编辑
func (h *SessionHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := sessionID(c)
	if !h.allowSubmit(c, id) {
		if _, err := h.sessions.SaveDraft(c.Request.Context(), id, req.Command); err != nil {
			klog.Warningf("[handler.Submit] 保存草稿失败: %v", err)
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": TooManyRequestsText})
		return
	}

	sess, err := h.sessions.Submit(c.Request.Context(), id, req.Command)
	if err != nil {
		if sess == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error": domain.DescribeFailure(err),
			"kind":  domain.ClassifyError(err),
		})
		return
	}
	h.respond(c, sess)
}

// Reset 重置会话
func (h *SessionHandler) Reset(c *gin.Context) {
	sess, err := h.sessions.Reset(c.Request.Context(), sessionID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, sess)
}

// OpenStep 打开步骤的文章侧边栏
func (h *SessionHandler) OpenStep(c *gin.Context) {
	sess, err := h.sessions.OpenStep(c.Request.Context(), sessionID(c), c.Param("key"))
	if err != nil {
		if errors.Is(err, domain.ErrStepNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "step not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, sess)
}

// ClosePanel 关闭侧边栏
func (h *SessionHandler) ClosePanel(c *gin.Context) {
	sess, err := h.sessions.ClosePanel(c.Request.Context(), sessionID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, sess)
}

func (h *SessionHandler) respond(c *gin.Context, sess *domain.Session) {
	c.JSON(http.StatusOK, newSessionResponse(view.NewPage(sess, h.linkTemplate)))
}

func (h *SessionHandler) renderPage(c *gin.Context, status int, page *view.Page) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, page); err != nil {
		klog.Errorf("[handler.renderPage] 渲染页面失败: %v", err)
		c.String(http.StatusInternalServerError, "Failed to render page")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (h *SessionHandler) redirectHome(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}
