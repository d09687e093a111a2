package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// SessionStatus 会话的所有可能状态
type SessionStatus string

const (
	SessionStatusEmpty SessionStatus = "empty" // 尚未生成 roadmap，命令按生成处理
	SessionStatusBound SessionStatus = "bound" // 已绑定 roadmap，命令按编辑处理
)

// SessionEvent 触发状态迁移的事件
type SessionEvent string

const (
	EventGenerate SessionEvent = "generate"
	EventUpdate   SessionEvent = "update"
	EventReset    SessionEvent = "reset"
)

// SessionTransition 定义会话状态迁移：在 From 状态下发生 Event
type SessionTransition struct {
	From  SessionStatus
	Event SessionEvent
}

// SessionStateMachine 会话状态机
type SessionStateMachine struct {
	// 合法迁移及其目标状态
	allowedTransitions map[SessionTransition]SessionStatus
}

// NewSessionStateMachine 创建会话状态机
func NewSessionStateMachine() *SessionStateMachine {
	sm := &SessionStateMachine{
		allowedTransitions: make(map[SessionTransition]SessionStatus),
	}

	// empty --generate--> bound
	// bound --update--> bound（id 可能不变）
	// empty|bound --reset--> empty
	sm.allowedTransitions[SessionTransition{SessionStatusEmpty, EventGenerate}] = SessionStatusBound
	sm.allowedTransitions[SessionTransition{SessionStatusBound, EventUpdate}] = SessionStatusBound
	sm.allowedTransitions[SessionTransition{SessionStatusEmpty, EventReset}] = SessionStatusEmpty
	sm.allowedTransitions[SessionTransition{SessionStatusBound, EventReset}] = SessionStatusEmpty

	return sm
}

// StatusOf 根据是否持有 roadmap id 推导状态
func StatusOf(roadmapID string) SessionStatus {
	if roadmapID == "" {
		return SessionStatusEmpty
	}
	return SessionStatusBound
}

// CommandEvent 当前状态下提交命令对应的事件：未绑定时生成，已绑定时编辑
func CommandEvent(status SessionStatus) SessionEvent {
	if status == SessionStatusBound {
		return EventUpdate
	}
	return EventGenerate
}

// CanTransition 检查迁移是否合法
func (sm *SessionStateMachine) CanTransition(from SessionStatus, event SessionEvent) bool {
	_, ok := sm.allowedTransitions[SessionTransition{From: from, Event: event}]
	return ok
}

// Next 返回迁移后的状态
func (sm *SessionStateMachine) Next(from SessionStatus, event SessionEvent) (SessionStatus, error) {
	to, ok := sm.allowedTransitions[SessionTransition{From: from, Event: event}]
	if !ok {
		return from, &InvalidSessionTransitionError{From: string(from), Event: string(event)}
	}
	return to, nil
}

// Transition 执行状态迁移（带日志）
func (sm *SessionStateMachine) Transition(from SessionStatus, event SessionEvent, sessionID string) (SessionStatus, error) {
	to, err := sm.Next(from, event)
	if err != nil {
		klog.V(6).Infof("会话状态迁移被拒绝: sessionID=%s, %s --%s-->, error=%v", sessionID, from, event, err)
		return from, err
	}
	klog.V(6).Infof("会话状态迁移成功: sessionID=%s, %s --%s--> %s", sessionID, from, event, to)
	return to, nil
}

// InvalidSessionTransitionError 无效的会话状态迁移错误
type InvalidSessionTransitionError struct {
	From  string
	Event string
}

func (e *InvalidSessionTransitionError) Error() string {
	return fmt.Sprintf("invalid session state transition: %s --%s-->", e.From, e.Event)
}
