// Package retention 按 cron 计划清理长时间未活跃的会话
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"k8s.io/klog/v2"

	"github.com/ArtemShamro/roadmap-generator/internal/pkg/metrics"
	"github.com/ArtemShamro/roadmap-generator/internal/repository"
)

// DefaultCron 每 10 分钟一次
const DefaultCron = "*/10 * * * *"

// Hook 每次清理后调用，参数为本次使用的截止时间
type Hook func(cutoff time.Time)

// Service 会话清理
type Service struct {
	repo  repository.SessionRepository
	ttl   time.Duration
	cron  string
	hooks []Hook
	now   func() time.Time
}

// New 创建清理服务，cron 为空时使用 DefaultCron
func New(repo repository.SessionRepository, ttl time.Duration, cronExpr string, hooks ...Hook) (*Service, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid session ttl: %s", ttl)
	}
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid cleanup cron expression: %s", cronExpr)
	}
	return &Service{
		repo:  repo,
		ttl:   ttl,
		cron:  cronExpr,
		hooks: hooks,
		now:   time.Now,
	}, nil
}

// RunOnce 删除最后更新早于 now-ttl 的会话
func (s *Service) RunOnce(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.ttl)
	removed, err := s.repo.DeleteIdleBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("清理过期会话失败: %w", err)
	}
	metrics.ObservePurged(removed)
	for _, hook := range s.hooks {
		hook(cutoff)
	}
	klog.V(6).Infof("会话清理完成: removed=%d, cutoff=%s", removed, cutoff.Format(time.RFC3339))
	return removed, nil
}

// Start 启动调度循环，ctx 取消时退出
func (s *Service) Start(ctx context.Context) {
	klog.Infof("会话清理已启用: cron=%s, ttl=%s", s.cron, s.ttl)
	go s.runScheduler(ctx)
}

func (s *Service) runScheduler(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		if err != nil {
			klog.Errorf("[retention.runScheduler] 计算下次执行时间失败: cron=%s, error=%v", s.cron, err)
			next = s.now().Add(30 * time.Second)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			klog.V(6).Infof("会话清理调度退出")
			return
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil {
				klog.Errorf("[retention.runScheduler] %v", err)
			}
		}
	}
}
