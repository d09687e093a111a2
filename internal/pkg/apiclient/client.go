package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ArtemShamro/roadmap-generator/internal/domain"
	"github.com/ArtemShamro/roadmap-generator/internal/pkg/metrics"
	"k8s.io/klog/v2"
)

// 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// Options 客户端选项
type Options struct {
	Timeout time.Duration
	// WithCredentials 为 true 时客户端保存并回传后端下发的 cookie。
	// 该 cookie 存储由所有调用共享，只适合单用户场景；多用户时用 WithCookieJar 按调用方隔离。
	WithCredentials bool
	// Transport 为空时使用 http.DefaultTransport
	Transport http.RoundTripper
}

// Client 指向单个后端的 JSON HTTP 客户端
type Client struct {
	name    string
	baseURL *url.URL
	client  *http.Client
}

// New 创建客户端，baseURL 必须是绝对地址
func New(name, baseURL string, opts Options) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("解析 %s 后端地址失败: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%s 后端地址格式不正确: %q", name, baseURL)
	}

	httpClient := &http.Client{Timeout: opts.Timeout, Transport: opts.Transport}
	if opts.WithCredentials {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}

	return &Client{name: name, baseURL: parsed, client: httpClient}, nil
}

// Name 后端名称，用于日志和指标
func (c *Client) Name() string {
	return c.name
}

// BaseURL 后端基础地址
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type cookieJarKey struct{}

// WithCookieJar 返回携带 cookie 存储的 context，请求会使用它代替客户端自身的存储
func WithCookieJar(ctx context.Context, jar http.CookieJar) context.Context {
	return context.WithValue(ctx, cookieJarKey{}, jar)
}

// CookieJarFrom 读取 context 中的 cookie 存储
func CookieJarFrom(ctx context.Context) (http.CookieJar, bool) {
	jar, ok := ctx.Value(cookieJarKey{}).(http.CookieJar)
	return jar, ok && jar != nil
}

// Do 发送 JSON 请求并把响应解码到 respBody。
// 传输失败返回 domain.ErrNetworkUnavailable，非 2xx 返回 *domain.BackendRejectedError，
// 响应无法解码返回 domain.ErrMalformedResponse。
func (c *Client) Do(ctx context.Context, method, path string, reqBody interface{}, respBody interface{}) error {
	start := time.Now()
	err := c.do(ctx, method, path, reqBody, respBody)
	metrics.ObserveBackendCall(c.name, path, outcome(err), time.Since(start))
	if err != nil {
		klog.Errorf("[apiclient.Do] 后端请求失败: backend=%s, method=%s, path=%s, error=%v", c.name, method, path, err)
		return err
	}
	klog.V(6).Infof("后端请求成功: backend=%s, method=%s, path=%s, elapsed=%s", c.name, method, path, time.Since(start))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody interface{}, respBody interface{}) error {
	target := c.baseURL.JoinPath(path).String()

	var body io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpClient := c.client
	if jar, ok := CookieJarFrom(ctx); ok {
		scoped := *c.client
		scoped.Jar = jar
		httpClient = &scoped
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrNetworkUnavailable, method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.BackendRejectedError{
			Backend: c.name,
			Status:  resp.StatusCode,
			Reason:  rejectReason(raw),
		}
	}

	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrMalformedResponse, method, target, err)
	}
	return nil
}

// rejectReason 从错误响应中提取原因：优先 detail（FastAPI），其次 error / message，否则取原文
func rejectReason(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			switch v := payload[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case nil:
			default:
				if encoded, err := json.Marshal(v); err == nil {
					return string(encoded)
				}
			}
		}
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	kind := domain.ClassifyError(err)
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return string(kind)
}
