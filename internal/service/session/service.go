package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ArtemShamro/roadmap-generator/internal/domain"
	"github.com/ArtemShamro/roadmap-generator/internal/eventbus"
	"github.com/ArtemShamro/roadmap-generator/internal/model"
	"github.com/ArtemShamro/roadmap-generator/internal/pkg/apiclient"
	"github.com/ArtemShamro/roadmap-generator/internal/repository"
	"github.com/ArtemShamro/roadmap-generator/internal/service/statemachine"
	"k8s.io/klog/v2"
)

// Commands roadmap 命令，由 roadmap.Service 实现
type Commands interface {
	Generate(ctx context.Context, description string) (*domain.RoadmapResult, error)
	Update(ctx context.Context, roadmapID, command string) (*domain.RoadmapResult, error)
	SearchArticles(ctx context.Context, query string, k int) ([]domain.SearchHit, error)
}

// Service 管理浏览器会话：提交命令、重置、打开/关闭文章侧边栏
type Service struct {
	repo     repository.SessionRepository
	commands Commands
	sm       *statemachine.SessionStateMachine
	locks    *keyedMutex
	searchK  int
	bus      *eventbus.SessionEventBus
	// jars 为空时后端调用不携带 cookie
	jars *cookieJars
}

// NewService 创建会话服务
func NewService(repo repository.SessionRepository, commands Commands, searchK int) *Service {
	return &Service{
		repo:     repo,
		commands: commands,
		sm:       statemachine.NewSessionStateMachine(),
		locks:    newKeyedMutex(),
		searchK:  searchK,
	}
}

// SetEventBus 设置会话事件总线
func (s *Service) SetEventBus(bus *eventbus.SessionEventBus) {
	s.bus = bus
}

// EnableBackendCookies 为每个会话保存并回传后端下发的 cookie，会话之间互不可见
func (s *Service) EnableBackendCookies() {
	s.jars = newCookieJars()
}

// PruneCookieJars 清理不再活跃会话的 cookie 存储
func (s *Service) PruneCookieJars(cutoff time.Time) {
	if s.jars == nil {
		return
	}
	if removed := s.jars.Prune(cutoff); removed > 0 {
		klog.V(6).Infof("清理后端 cookie 存储: removed=%d", removed)
	}
}

// Get 读取会话，不存在时返回新的空会话（不落库）
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.load(id)
}

// Submit 提交一条命令：未绑定时生成 roadmap，已绑定时按当前 roadmap id 编辑。
// 同一会话的提交串行执行。输入框无论成功与否都会被清空；
// 失败时会话保持原状并记录错误信息，返回的 error 为分类后的后端错误。
func (s *Service) Submit(ctx context.Context, id, text string) (*domain.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(id)
	if err != nil {
		return nil, err
	}

	from := statemachine.StatusOf(sess.RoadmapID)
	event := statemachine.CommandEvent(from)

	ctx = s.backendContext(ctx, id)
	var result *domain.RoadmapResult
	var callErr error
	switch event {
	case statemachine.EventUpdate:
		result, callErr = s.commands.Update(ctx, sess.RoadmapID, text)
	default:
		result, callErr = s.commands.Generate(ctx, text)
	}

	sess.Input = ""
	if callErr != nil {
		klog.Warningf("[session.Submit] 命令执行失败，会话保持不变: sessionID=%s, event=%s, error=%v", id, event, callErr)
		sess.LastError = domain.DescribeFailure(callErr)
		if err := s.save(sess); err != nil {
			return nil, err
		}
		s.publish(ctx, eventbus.SessionEvent{
			Type:      eventbus.SessionEventCommandFailed,
			SessionID: id,
			RoadmapID: sess.RoadmapID,
			Command:   string(event),
			Status:    string(from),
			Err:       callErr,
		})
		return sess, callErr
	}

	to, err := s.sm.Transition(from, event, id)
	if err != nil {
		return nil, err
	}
	sess.Apply(result)

	if err := s.save(sess); err != nil {
		return nil, err
	}
	s.publish(ctx, eventbus.SessionEvent{
		Type:      eventbus.SessionEventRoadmapApplied,
		SessionID: id,
		RoadmapID: sess.RoadmapID,
		Command:   string(event),
		Status:    string(to),
	})
	return sess, nil
}

// SaveDraft 保存未提交的输入（例如提交被限流时）
func (s *Service) SaveDraft(ctx context.Context, id, text string) (*domain.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(id)
	if err != nil {
		return nil, err
	}
	sess.Input = text
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reset 回到空状态：清除 roadmap id、树、输入和侧边栏
func (s *Service) Reset(ctx context.Context, id string) (*domain.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(id)
	if err != nil {
		return nil, err
	}
	to, err := s.sm.Transition(statemachine.StatusOf(sess.RoadmapID), statemachine.EventReset, id)
	if err != nil {
		return nil, err
	}
	sess.Reset()

	if err := s.save(sess); err != nil {
		return nil, err
	}
	s.publish(ctx, eventbus.SessionEvent{
		Type:      eventbus.SessionEventReset,
		SessionID: id,
		Command:   string(statemachine.EventReset),
		Status:    string(to),
	})
	return sess, nil
}

// OpenStep 打开 key 对应步骤的侧边栏，必要时按步骤名称检索文章。
// 检索在锁外进行；响应返回后仅当其序号仍是最新且侧边栏仍为该步骤打开时才会写入。
func (s *Service) OpenStep(ctx context.Context, id, key string) (*domain.Session, error) {
	unlock := s.locks.Lock(id)
	sess, err := s.load(id)
	if err != nil {
		unlock()
		return nil, err
	}
	step := domain.FindByKey(sess.Tree, key)
	if step == nil || step.Name == "" {
		unlock()
		return nil, fmt.Errorf("%w: key=%s", domain.ErrStepNotFound, key)
	}
	req, search := sess.Panel.OpenFor(step)
	if err := s.save(sess); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	if !search {
		return sess, nil
	}

	hits, searchErr := s.commands.SearchArticles(s.backendContext(ctx, id), req.Query, s.searchK)

	unlock = s.locks.Lock(id)
	defer unlock()

	sess, err = s.load(id)
	if err != nil {
		return nil, err
	}
	if !sess.Panel.ApplySearch(req, hits, searchErr) {
		s.publish(ctx, eventbus.SessionEvent{
			Type:      eventbus.SessionEventSearchDiscarded,
			SessionID: id,
			RoadmapID: sess.RoadmapID,
			Query:     req.Query,
		})
		return sess, nil
	}
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ClosePanel 关闭侧边栏并清除选中步骤
func (s *Service) ClosePanel(ctx context.Context, id string) (*domain.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(id)
	if err != nil {
		return nil, err
	}
	sess.Panel.Close()
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// backendContext 附加会话自己的 cookie 存储
func (s *Service) backendContext(ctx context.Context, id string) context.Context {
	if s.jars == nil {
		return ctx
	}
	if jar := s.jars.get(id); jar != nil {
		return apiclient.WithCookieJar(ctx, jar)
	}
	return ctx
}

func (s *Service) publish(ctx context.Context, event eventbus.SessionEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		klog.Warningf("[session.publish] 处理会话事件失败: type=%s, error=%v", event.Type, err)
	}
}

func (s *Service) load(id string) (*domain.Session, error) {
	row, err := s.repo.Get(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewSession(id), nil
		}
		return nil, fmt.Errorf("读取会话失败: %w", err)
	}
	return fromModel(row)
}

func (s *Service) save(sess *domain.Session) error {
	row, err := toModel(sess)
	if err != nil {
		return err
	}
	if err := s.repo.Save(row); err != nil {
		return fmt.Errorf("保存会话失败: %w", err)
	}
	return nil
}

func toModel(sess *domain.Session) (*model.Session, error) {
	row := &model.Session{
		ID:        sess.ID,
		RoadmapID: sess.RoadmapID,
		Title:     sess.Title,
		Input:     sess.Input,
		LastError: sess.LastError,
		CreatedAt: sess.CreatedAt,
	}
	if sess.Tree != nil {
		tree, err := json.Marshal(sess.Tree)
		if err != nil {
			return nil, err
		}
		row.TreeJSON = string(tree)
	}
	panel, err := json.Marshal(sess.Panel)
	if err != nil {
		return nil, err
	}
	row.PanelJSON = string(panel)
	return row, nil
}

func fromModel(row *model.Session) (*domain.Session, error) {
	sess := &domain.Session{
		ID:        row.ID,
		RoadmapID: row.RoadmapID,
		Title:     row.Title,
		Input:     row.Input,
		LastError: row.LastError,
		CreatedAt: row.CreatedAt,
	}
	if row.TreeJSON != "" {
		tree, err := domain.DecodeRoadmap([]byte(row.TreeJSON))
		if err != nil {
			return nil, fmt.Errorf("解析会话 roadmap 失败: %w", err)
		}
		sess.Tree = tree
	}
	if row.PanelJSON != "" {
		if err := json.Unmarshal([]byte(row.PanelJSON), &sess.Panel); err != nil {
			return nil, fmt.Errorf("解析会话侧边栏失败: %w", err)
		}
		sess.Panel.Restore(sess.Tree)
	}
	return sess, nil
}
