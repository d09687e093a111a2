package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ArtemShamro/roadmap-generator/internal/domain"
	"github.com/ArtemShamro/roadmap-generator/internal/eventbus"
	"github.com/ArtemShamro/roadmap-generator/internal/model"
	"github.com/ArtemShamro/roadmap-generator/internal/pkg/apiclient"
	"github.com/ArtemShamro/roadmap-generator/internal/repository"
	"github.com/ArtemShamro/roadmap-generator/internal/view"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeCommands struct {
	mu sync.Mutex

	generateCalls []string
	updateCalls   [][2]string
	searchCalls   []string
	// contexts 每次后端调用收到的 context
	contexts []context.Context

	generateFunc func(description string) (*domain.RoadmapResult, error)
	updateFunc   func(roadmapID, command string) (*domain.RoadmapResult, error)
	searchFunc   func(query string) ([]domain.SearchHit, error)
}

func (f *fakeCommands) Generate(ctx context.Context, description string) (*domain.RoadmapResult, error) {
	f.mu.Lock()
	f.generateCalls = append(f.generateCalls, description)
	f.contexts = append(f.contexts, ctx)
	f.mu.Unlock()
	return f.generateFunc(description)
}

func (f *fakeCommands) Update(ctx context.Context, roadmapID, command string) (*domain.RoadmapResult, error) {
	f.mu.Lock()
	f.updateCalls = append(f.updateCalls, [2]string{roadmapID, command})
	f.contexts = append(f.contexts, ctx)
	f.mu.Unlock()
	return f.updateFunc(roadmapID, command)
}

func (f *fakeCommands) SearchArticles(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, query)
	f.contexts = append(f.contexts, ctx)
	f.mu.Unlock()
	return f.searchFunc(query)
}

func newTestService(t *testing.T, commands Commands) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: 库每个连接独立，限制为单连接
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Session{}))
	return NewService(repository.NewSessionRepository(db), commands, 10)
}

// lockHolders 持有或等待 id 对应会话锁的调用数
func lockHolders(svc *Service, id string) int {
	svc.locks.mu.Lock()
	defer svc.locks.mu.Unlock()
	if entry, ok := svc.locks.locks[id]; ok {
		return entry.refs
	}
	return 0
}

func roadmapR1() *domain.RoadmapResult {
	return &domain.RoadmapResult{
		ID: "r1",
		Structure: &domain.RoadmapNode{
			Title: "Roadmap",
			Steps: []*domain.RoadmapNode{{Name: "Learn Python"}},
		},
	}
}

func TestSubmitInEmptyStateGenerates(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
	}
	svc := newTestService(t, commands)

	sess, err := svc.Submit(context.Background(), "s1", "backend developer")
	require.NoError(t, err)

	assert.Equal(t, []string{"backend developer"}, commands.generateCalls)
	assert.Empty(t, commands.updateCalls)
	assert.True(t, sess.Bound())
	assert.Equal(t, "r1", sess.RoadmapID)
	require.NotNil(t, sess.Tree)
	assert.Equal(t, "Roadmap", sess.Tree.Title)
	require.Len(t, sess.Tree.Steps, 1)
	assert.Equal(t, "Learn Python", sess.Tree.Steps[0].Name)

	reloaded, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "r1", reloaded.RoadmapID)
	assert.Equal(t, sess.Tree.Steps[0].Key, reloaded.Tree.Steps[0].Key)
}

func TestSubmitInEmptyStateFailureStaysEmpty(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return nil, domain.ErrNetworkUnavailable },
	}
	svc := newTestService(t, commands)

	sess, err := svc.Submit(context.Background(), "s1", "anything")
	assert.True(t, errors.Is(err, domain.ErrNetworkUnavailable))
	require.NotNil(t, sess)
	assert.False(t, sess.Bound())
	assert.Nil(t, sess.Tree)
	assert.NotEmpty(t, sess.LastError)
}

func TestSubmitInBoundStateUpdatesWithCurrentID(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		updateFunc: func(roadmapID, command string) (*domain.RoadmapResult, error) {
			return &domain.RoadmapResult{ID: roadmapID, Structure: &domain.RoadmapNode{Title: "Edited"}}, nil
		},
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)
	sess, err := svc.Submit(ctx, "s1", "add docker")
	require.NoError(t, err)

	assert.Len(t, commands.generateCalls, 1)
	assert.Equal(t, [][2]string{{"r1", "add docker"}}, commands.updateCalls)
	assert.Equal(t, "r1", sess.RoadmapID)
	assert.Equal(t, "Edited", sess.Tree.Title)
}

func TestSubmitUpdateFailureKeepsTree(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		updateFunc: func(string, string) (*domain.RoadmapResult, error) {
			return nil, domain.ErrNetworkUnavailable
		},
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	before, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)

	after, err := svc.Submit(ctx, "s1", "remove last step")
	require.Error(t, err)
	assert.Equal(t, "r1", after.RoadmapID)
	assert.Equal(t, before.Tree, after.Tree)
	assert.Empty(t, after.Input)
	assert.Equal(t, domain.DescribeFailure(domain.ErrNetworkUnavailable), after.LastError)
}

func TestResetFromAnyState(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		searchFunc:   func(string) ([]domain.SearchHit, error) { return nil, nil },
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	empty, err := svc.Reset(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, empty.Bound())

	sess, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)
	_, err = svc.SaveDraft(ctx, "s1", "draft text")
	require.NoError(t, err)
	_, err = svc.OpenStep(ctx, "s1", sess.Tree.Steps[0].Key)
	require.NoError(t, err)

	reset, err := svc.Reset(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, reset.RoadmapID)
	assert.Nil(t, reset.Tree)
	assert.Empty(t, reset.Input)
	assert.False(t, reset.Panel.Open)
	assert.Nil(t, reset.Panel.Step)
}

func TestOpenStepSearchesOnceAndFilters(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		searchFunc: func(query string) ([]domain.SearchHit, error) {
			return []domain.SearchHit{
				{Article: domain.Article{ID: 1, Name: "", Text: "x"}},
				{Article: domain.Article{ID: 2, Name: "Intro", Text: strings.Repeat("y", 150)}},
			}, nil
		},
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	sess, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)
	key := sess.Tree.Steps[0].Key

	opened, err := svc.OpenStep(ctx, "s1", key)
	require.NoError(t, err)
	assert.Equal(t, []string{"Learn Python"}, commands.searchCalls)
	assert.True(t, opened.Panel.Open)
	require.Len(t, opened.Panel.Visible(), 1)
	assert.Equal(t, "Intro", opened.Panel.Visible()[0].Article.Name)

	// 已为同名步骤打开时不重复检索
	_, err = svc.OpenStep(ctx, "s1", key)
	require.NoError(t, err)
	assert.Len(t, commands.searchCalls, 1)

	// 关闭后重新打开会再次检索
	_, err = svc.ClosePanel(ctx, "s1")
	require.NoError(t, err)
	_, err = svc.OpenStep(ctx, "s1", key)
	require.NoError(t, err)
	assert.Len(t, commands.searchCalls, 2)
}

func TestOpenStepSearchFailureSetsError(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		searchFunc:   func(string) ([]domain.SearchHit, error) { return nil, domain.ErrNetworkUnavailable },
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	sess, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)

	opened, err := svc.OpenStep(ctx, "s1", sess.Tree.Steps[0].Key)
	require.NoError(t, err)
	assert.Equal(t, domain.SearchFailedText, opened.Panel.Error)
	assert.Empty(t, opened.Panel.Articles)
}

func TestOpenStepUnknownKey(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	sess, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)

	_, err = svc.OpenStep(ctx, "s1", "nope")
	assert.True(t, errors.Is(err, domain.ErrStepNotFound))

	// 根节点只有 title，不可点击
	_, err = svc.OpenStep(ctx, "s1", sess.Tree.Key)
	assert.True(t, errors.Is(err, domain.ErrStepNotFound))
}

func TestOpenStepLateResponseAfterCloseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		searchFunc: func(string) ([]domain.SearchHit, error) {
			close(started)
			<-release
			return []domain.SearchHit{{Article: domain.Article{ID: 7, Name: "Late"}}}, nil
		},
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	sess, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)

	done := make(chan *domain.Session)
	go func() {
		out, _ := svc.OpenStep(ctx, "s1", sess.Tree.Steps[0].Key)
		done <- out
	}()

	<-started
	_, err = svc.ClosePanel(ctx, "s1")
	require.NoError(t, err)
	close(release)
	<-done

	final, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, final.Panel.Open)
	assert.Empty(t, final.Panel.Articles)
}

func TestSubmitAndResetPublishEvents(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		updateFunc: func(string, string) (*domain.RoadmapResult, error) {
			return nil, &domain.BackendRejectedError{Backend: "agent", Status: 400}
		},
	}
	svc := newTestService(t, commands)
	bus := eventbus.NewSessionEventBus()
	svc.SetEventBus(bus)

	var events []eventbus.SessionEvent
	record := func(ctx context.Context, event eventbus.SessionEvent) error {
		events = append(events, event)
		return nil
	}
	bus.Subscribe(eventbus.SessionEventRoadmapApplied, record)
	bus.Subscribe(eventbus.SessionEventCommandFailed, record)
	bus.Subscribe(eventbus.SessionEventReset, record)

	ctx := context.Background()
	_, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "s1", "bad command")
	require.Error(t, err)
	_, err = svc.Reset(ctx, "s1")
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, eventbus.SessionEventRoadmapApplied, events[0].Type)
	assert.Equal(t, "generate", events[0].Command)
	assert.Equal(t, "bound", events[0].Status)
	assert.Equal(t, eventbus.SessionEventCommandFailed, events[1].Type)
	assert.Equal(t, "update", events[1].Command)
	assert.Equal(t, domain.FailureBackendRejected, domain.ClassifyError(events[1].Err))
	assert.Equal(t, eventbus.SessionEventReset, events[2].Type)
	assert.Equal(t, "empty", events[2].Status)
}

func TestConcurrentSubmitsAreSerialized(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) {
			close(started)
			<-release
			return roadmapR1(), nil
		},
		updateFunc: func(roadmapID, command string) (*domain.RoadmapResult, error) {
			return &domain.RoadmapResult{ID: "r2", Structure: &domain.RoadmapNode{Title: "Edited"}}, nil
		},
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Submit(ctx, "s1", "backend developer")
		assert.NoError(t, err)
	}()
	<-started

	second := make(chan *domain.Session, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sess, err := svc.Submit(ctx, "s1", "add docker")
		assert.NoError(t, err)
		second <- sess
	}()

	// 第二次提交排在同一会话锁上之后再放行第一次
	require.Eventually(t, func() bool { return lockHolders(svc, "s1") == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	// 第二次提交在第一次完成后执行，因此按编辑处理
	require.Len(t, commands.generateCalls, 1)
	require.Len(t, commands.updateCalls, 1)
	assert.Equal(t, [2]string{"r1", "add docker"}, commands.updateCalls[0])
	assert.Equal(t, "r2", (<-second).RoadmapID)
}

func TestOpenStepSelectionSurvivesReload(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		searchFunc:   func(string) ([]domain.SearchHit, error) { return nil, nil },
	}
	svc := newTestService(t, commands)
	ctx := context.Background()

	sess, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)
	key := sess.Tree.Steps[0].Key

	opened, err := svc.OpenStep(ctx, "s1", key)
	require.NoError(t, err)
	assert.Equal(t, key, opened.Panel.StepKey)

	reloaded, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, reloaded.Panel.Step)
	assert.Equal(t, key, reloaded.Panel.Step.Key)
	assert.Same(t, reloaded.Tree.Steps[0], reloaded.Panel.Step)

	page := view.NewPage(reloaded, "")
	require.NotNil(t, page.Tree)
	require.Len(t, page.Tree.Children, 1)
	assert.True(t, page.Tree.Children[0].Selected)
}

func TestBackendCookiesArePerSession(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
		updateFunc: func(roadmapID, command string) (*domain.RoadmapResult, error) {
			return roadmapR1(), nil
		},
	}
	svc := newTestService(t, commands)
	svc.EnableBackendCookies()
	ctx := context.Background()

	_, err := svc.Submit(ctx, "s1", "backend developer")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "s2", "frontend developer")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "s1", "add docker")
	require.NoError(t, err)

	require.Len(t, commands.contexts, 3)
	jars := make([]http.CookieJar, 0, 3)
	for _, c := range commands.contexts {
		jar, ok := apiclient.CookieJarFrom(c)
		require.True(t, ok)
		jars = append(jars, jar)
	}
	assert.Same(t, jars[0], jars[2])
	assert.NotSame(t, jars[0], jars[1])

	// 超过截止时间未使用的存储被清理，之后重新创建
	svc.PruneCookieJars(time.Now().Add(time.Minute))
	_, err = svc.Submit(ctx, "s1", "remove last step")
	require.NoError(t, err)
	jar, ok := apiclient.CookieJarFrom(commands.contexts[3])
	require.True(t, ok)
	assert.NotSame(t, jars[0], jar)
}

func TestBackendCookiesDisabledByDefault(t *testing.T) {
	commands := &fakeCommands{
		generateFunc: func(string) (*domain.RoadmapResult, error) { return roadmapR1(), nil },
	}
	svc := newTestService(t, commands)

	_, err := svc.Submit(context.Background(), "s1", "backend developer")
	require.NoError(t, err)
	require.Len(t, commands.contexts, 1)
	_, ok := apiclient.CookieJarFrom(commands.contexts[0])
	assert.False(t, ok)
}
