package subscriber

import (
	"context"

	"github.com/ArtemShamro/roadmap-generator/internal/domain"
	"github.com/ArtemShamro/roadmap-generator/internal/eventbus"
	"github.com/ArtemShamro/roadmap-generator/internal/pkg/metrics"
	"k8s.io/klog/v2"
)

// SessionEventSubscriber 把会话事件记录为指标和日志
type SessionEventSubscriber struct{}

func NewSessionEventSubscriber() *SessionEventSubscriber {
	return &SessionEventSubscriber{}
}

func (s *SessionEventSubscriber) Register(bus *eventbus.SessionEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.SessionEventRoadmapApplied, s.handleTransition)
	bus.Subscribe(eventbus.SessionEventReset, s.handleTransition)
	bus.Subscribe(eventbus.SessionEventCommandFailed, s.handleCommandFailed)
	bus.Subscribe(eventbus.SessionEventSearchDiscarded, s.handleSearchDiscarded)
}

func (s *SessionEventSubscriber) handleTransition(ctx context.Context, event eventbus.SessionEvent) error {
	metrics.ObserveTransition(event.Command, event.Status)
	klog.V(6).Infof("会话事件: type=%s, sessionID=%s, roadmapID=%s, status=%s", event.Type, event.SessionID, event.RoadmapID, event.Status)
	return nil
}

func (s *SessionEventSubscriber) handleCommandFailed(ctx context.Context, event eventbus.SessionEvent) error {
	metrics.ObserveCommandFailure(event.Command, string(domain.ClassifyError(event.Err)))
	klog.V(6).Infof("命令失败: sessionID=%s, command=%s, error=%v", event.SessionID, event.Command, event.Err)
	return nil
}

func (s *SessionEventSubscriber) handleSearchDiscarded(ctx context.Context, event eventbus.SessionEvent) error {
	metrics.ObserveStaleSearch()
	klog.V(6).Infof("丢弃过期的检索结果: sessionID=%s, query=%q", event.SessionID, event.Query)
	return nil
}
