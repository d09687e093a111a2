package domain

import "time"

// Session 一个浏览器会话持有的 roadmap 状态。
// RoadmapID 为空表示尚未生成（下一条命令按生成处理），否则表示已绑定。
type Session struct {
	ID        string       `json:"id"`
	RoadmapID string       `json:"roadmap_id,omitempty"`
	Title     string       `json:"title,omitempty"`
	Tree      *RoadmapNode `json:"tree,omitempty"`
	Input     string       `json:"input,omitempty"`
	Panel     PanelState   `json:"panel"`
	LastError string       `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewSession 创建空会话
func NewSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now()}
}

// Bound 是否已绑定 roadmap
func (s *Session) Bound() bool {
	return s.RoadmapID != ""
}

// Apply 用一次成功的生成/更新结果整体替换会话中的 roadmap
func (s *Session) Apply(result *RoadmapResult) {
	s.RoadmapID = result.ID
	s.Title = result.Title
	s.Tree = result.Structure
	AssignKeys(s.Tree)
	s.LastError = ""
}

// Reset 清空 roadmap、输入和侧边栏
func (s *Session) Reset() {
	s.RoadmapID = ""
	s.Title = ""
	s.Tree = nil
	s.Input = ""
	s.Panel = PanelState{}
	s.LastError = ""
}

// PanelState 文章侧边栏状态
type PanelState struct {
	Open bool         `json:"open"`
	Step *RoadmapNode `json:"step,omitempty"`

	// StepKey 选中步骤的 key；节点 key 不参与序列化，持久化后靠它恢复选中状态
	StepKey  string      `json:"step_key,omitempty"`
	Articles []SearchHit `json:"articles,omitempty"`
	Error    string      `json:"error,omitempty"`
	// Seq 最近一次发出的检索序号，只接受序号一致的响应
	Seq uint64 `json:"seq"`
}

// SearchRequest 打开侧边栏时需要发出的检索
type SearchRequest struct {
	Query string
	Seq   uint64
}

// OpenFor 为步骤打开侧边栏。
// 侧边栏从关闭变为打开，或打开状态下步骤名称发生变化时，返回一次需要发出的检索；
// 步骤名称为空时不检索。
func (p *PanelState) OpenFor(step *RoadmapNode) (SearchRequest, bool) {
	wasOpen := p.Open
	prevName := ""
	if p.Step != nil {
		prevName = p.Step.Name
	}

	p.Open = true
	p.Step = step
	p.StepKey = ""
	if step != nil {
		p.StepKey = step.Key
	}
	if step == nil || step.Name == "" {
		return SearchRequest{}, false
	}
	if wasOpen && prevName == step.Name {
		return SearchRequest{}, false
	}

	p.Seq++
	return SearchRequest{Query: step.Name, Seq: p.Seq}, true
}

// Close 关闭侧边栏并清除选中步骤，不取消进行中的检索（其响应会因序号过期被丢弃）
func (p *PanelState) Close() {
	p.Open = false
	p.Step = nil
	p.StepKey = ""
}

// Restore 反序列化后把选中步骤重新指向树中的节点
func (p *PanelState) Restore(tree *RoadmapNode) {
	if p.StepKey == "" {
		return
	}
	if node := FindByKey(tree, p.StepKey); node != nil {
		p.Step = node
	}
}

// ApplySearch 应用检索结果。序号不是最新、侧边栏已关闭或步骤已切换时丢弃并返回 false。
func (p *PanelState) ApplySearch(req SearchRequest, hits []SearchHit, err error) bool {
	if req.Seq != p.Seq || !p.Open || p.Step == nil || p.Step.Name != req.Query {
		return false
	}
	if err != nil {
		p.Articles = nil
		p.Error = SearchFailedText
		return true
	}
	p.Articles = hits
	p.Error = ""
	return true
}

// Visible 侧边栏中实际展示的文章
func (p *PanelState) Visible() []SearchHit {
	return ValidArticles(p.Articles)
}

const SearchFailedText = "Не удалось загрузить статьи"
