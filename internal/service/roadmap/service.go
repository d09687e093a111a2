package roadmap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ArtemShamro/roadmap-generator/internal/domain"
	"k8s.io/klog/v2"
)

// DefaultSearchK 默认返回的文章数量
const DefaultSearchK = 10

// Requester 单个后端的 JSON 请求能力，由 apiclient.Client 实现
type Requester interface {
	Name() string
	Do(ctx context.Context, method, path string, reqBody interface{}, respBody interface{}) error
}

type generateRequest struct {
	Description string `json:"description"`
}

type updateRequest struct {
	RoadmapID string `json:"roadmap_id"`
	Command   string `json:"command"`
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// Service 封装 Agent 与 Search 两个后端的三个命令
type Service struct {
	agent   Requester
	search  Requester
	searchK int
}

// NewService 创建 roadmap 命令服务，searchK<=0 时使用默认值
func NewService(agent, search Requester, searchK int) *Service {
	if searchK <= 0 {
		searchK = DefaultSearchK
	}
	return &Service{agent: agent, search: search, searchK: searchK}
}

// Generate 根据描述生成 roadmap。描述可以为空，是否合法由后端决定。
func (s *Service) Generate(ctx context.Context, description string) (*domain.RoadmapResult, error) {
	klog.V(6).Infof("生成 roadmap: description=%q", description)
	var result domain.RoadmapResult
	if err := s.agent.Do(ctx, http.MethodPost, "/generate", generateRequest{Description: description}, &result); err != nil {
		return nil, err
	}
	if err := validateResult(&result); err != nil {
		klog.Errorf("[roadmap.Generate] 生成结果不合法: error=%v", err)
		return nil, err
	}
	return &result, nil
}

// Update 用自然语言命令编辑已有 roadmap
func (s *Service) Update(ctx context.Context, roadmapID, command string) (*domain.RoadmapResult, error) {
	klog.V(6).Infof("编辑 roadmap: roadmapID=%s, command=%q", roadmapID, command)
	var result domain.RoadmapResult
	req := updateRequest{RoadmapID: roadmapID, Command: command}
	if err := s.agent.Do(ctx, http.MethodPut, "/update", req, &result); err != nil {
		return nil, err
	}
	if err := validateResult(&result); err != nil {
		klog.Errorf("[roadmap.Update] 编辑结果不合法: roadmapID=%s, error=%v", roadmapID, err)
		return nil, err
	}
	return &result, nil
}

// SearchArticles 按查询检索文章，k<=0 时使用服务默认值
func (s *Service) SearchArticles(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = s.searchK
	}
	klog.V(6).Infof("检索文章: query=%q, k=%d", query, k)
	var hits []domain.SearchHit
	if err := s.search.Do(ctx, http.MethodPost, "/search", searchRequest{Query: query, K: k}, &hits); err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	return hits, nil
}

func validateResult(result *domain.RoadmapResult) error {
	if result.ID == "" {
		return fmt.Errorf("%w: missing roadmap id", domain.ErrMalformedResponse)
	}
	domain.AssignKeys(result.Structure)
	return nil
}
