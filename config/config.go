package config

import (
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Backends BackendsConfig `yaml:"backends"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Session  SessionConfig  `yaml:"session"`
	Articles ArticlesConfig `yaml:"articles"`
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	Mode      string `yaml:"mode"`       // debug, release
	PublicURL string `yaml:"public_url"` // 相对后端地址以此为基准解析
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

// BackendsConfig 两个外部服务：Agent（生成/编辑 roadmap）与 Search（文章检索）
type BackendsConfig struct {
	AgentURL        string        `yaml:"agent_url"`
	SimURL          string        `yaml:"sim_url"`
	Timeout         time.Duration `yaml:"timeout"`
	WithCredentials bool          `yaml:"with_credentials"`
	SearchK         int           `yaml:"search_k"`
}

// ProxyConfig 本地开发代理：/api/agent/* 与 /api/sim/* 去掉前缀后转发
type ProxyConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AgentTarget string `yaml:"agent_target"`
	SimTarget   string `yaml:"sim_target"`
}

type SessionConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	CleanupCron string        `yaml:"cleanup_cron"`
	SubmitRPS   float64       `yaml:"submit_rps"`
	SubmitBurst int           `yaml:"submit_burst"`

	// 同一客户端 IP 的提交上限
	SubmitIPRPS   float64 `yaml:"submit_ip_rps"`
	SubmitIPBurst int     `yaml:"submit_ip_burst"`
}

type ArticlesConfig struct {
	LinkTemplate string `yaml:"link_template"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

// Default 返回未读取文件和环境变量时的默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/app.db",
		},
		Backends: BackendsConfig{
			AgentURL:        "/api/agent",
			SimURL:          "/api/sim",
			Timeout:         30 * time.Second,
			WithCredentials: true,
			SearchK:         10,
		},
		Proxy: ProxyConfig{
			Enabled:     true,
			AgentTarget: "http://localhost:9005",
			SimTarget:   "http://localhost:9004",
		},
		Session: SessionConfig{
			TTL:           time.Hour,
			CleanupCron:   "*/10 * * * *",
			SubmitRPS:     1,
			SubmitBurst:   3,
			SubmitIPRPS:   5,
			SubmitIPBurst: 10,
		},
		Articles: ArticlesConfig{
			LinkTemplate: "https://habr.com/ru/articles/%d/",
		},
	}
}

func loadConfig() *Config {
	config := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		yaml.Unmarshal(data, config)
	}

	applyEnv(config)

	if config.Server.PublicURL == "" {
		config.Server.PublicURL = "http://localhost:" + config.Server.Port
	}
	return config
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	}
	if publicURL := os.Getenv("PUBLIC_URL"); publicURL != "" {
		config.Server.PublicURL = publicURL
	}

	// 兼容前端构建时使用的 VITE_ 前缀
	if agentURL := firstEnv("AGENT_API_URL", "VITE_AGENT_API_URL"); agentURL != "" {
		config.Backends.AgentURL = agentURL
	}
	if simURL := firstEnv("SIM_API_URL", "VITE_SIM_API_URL"); simURL != "" {
		config.Backends.SimURL = simURL
	}
	if target := os.Getenv("AGENT_PROXY_TARGET"); target != "" {
		config.Proxy.AgentTarget = target
	}
	if target := os.Getenv("SIM_PROXY_TARGET"); target != "" {
		config.Proxy.SimTarget = target
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// ResolveBackendURL 将相对地址（如 /api/agent）解析为基于 public_url 的绝对地址
func (c *Config) ResolveBackendURL(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return raw, nil
	}
	base, err := url.Parse(c.Server.PublicURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
