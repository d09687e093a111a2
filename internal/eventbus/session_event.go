package eventbus

type SessionEventType string

const (
	// SessionEventRoadmapApplied 生成或编辑成功，会话绑定到新的 roadmap
	SessionEventRoadmapApplied SessionEventType = "RoadmapApplied"
	// SessionEventCommandFailed 生成或编辑失败，会话保持不变
	SessionEventCommandFailed SessionEventType = "CommandFailed"
	SessionEventReset         SessionEventType = "Reset"
	// SessionEventSearchDiscarded 检索结果因过期被丢弃
	SessionEventSearchDiscarded SessionEventType = "SearchDiscarded"
)

type SessionEvent struct {
	Type      SessionEventType
	SessionID string
	RoadmapID string
	// Command 触发的状态机事件（generate/update/reset）
	Command string
	// Status 迁移后的会话状态
	Status string
	Query  string
	Err    error
}

func (e SessionEvent) EventType() SessionEventType {
	return e.Type
}

type SessionEventHandler = Handler[SessionEvent]
type SessionEventBus = Bus[SessionEventType, SessionEvent]

func NewSessionEventBus() *SessionEventBus {
	return NewBus[SessionEventType, SessionEvent]()
}
