package handler

import (
	"github.com/ArtemShamro/roadmap-generator/internal/service/statemachine"
	"github.com/ArtemShamro/roadmap-generator/internal/view"
)

// SubmitRequest 提交命令请求
type SubmitRequest struct {
	Command string `json:"command"`
}

// SessionResponse 会话状态响应
type SessionResponse struct {
	State       string        `json:"state"`
	RoadmapID   string        `json:"roadmap_id,omitempty"`
	Title       string        `json:"title,omitempty"`
	Tree        *NodeResponse `json:"tree,omitempty"`
	Input       string        `json:"input"`
	Placeholder string        `json:"placeholder"`
	Error       string        `json:"error,omitempty"`
	Panel       PanelResponse `json:"panel"`
}

// NodeResponse roadmap 节点
type NodeResponse struct {
	Key      string          `json:"key"`
	Title    string          `json:"title,omitempty"`
	Name     string          `json:"name,omitempty"`
	Level    int             `json:"level"`
	Main     bool            `json:"main,omitempty"`
	Selected bool            `json:"selected,omitempty"`
	Steps    []*NodeResponse `json:"steps,omitempty"`
}

// PanelResponse 文章侧边栏
type PanelResponse struct {
	Open     bool              `json:"open"`
	Step     string            `json:"step,omitempty"`
	Error    string            `json:"error,omitempty"`
	Articles []ArticleResponse `json:"articles"`
}

// ArticleResponse 文章
type ArticleResponse struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Preview string `json:"preview"`
}

func newSessionResponse(page *view.Page) SessionResponse {
	resp := SessionResponse{
		State:       string(statemachine.SessionStatusEmpty),
		RoadmapID:   page.RoadmapID,
		Title:       page.Title,
		Tree:        newNodeResponse(page.Tree),
		Input:       page.Input,
		Placeholder: page.Placeholder,
		Error:       page.Error,
		Panel: PanelResponse{
			Open:     page.Panel.Open,
			Step:     page.Panel.StepName,
			Error:    page.Panel.Error,
			Articles: make([]ArticleResponse, 0, len(page.Panel.Articles)),
		},
	}
	if page.Bound {
		resp.State = string(statemachine.SessionStatusBound)
	}
	for _, a := range page.Panel.Articles {
		resp.Panel.Articles = append(resp.Panel.Articles, ArticleResponse{
			ID:      a.ID,
			Title:   a.Title,
			Link:    a.Link,
			Preview: a.Preview,
		})
	}
	return resp
}

func newNodeResponse(v *view.NodeView) *NodeResponse {
	if v == nil {
		return nil
	}
	node := &NodeResponse{
		Key:      v.Key,
		Title:    v.Title,
		Name:     v.Name,
		Level:    v.Level,
		Main:     v.Main,
		Selected: v.Selected,
	}
	for _, child := range v.Children {
		node.Steps = append(node.Steps, newNodeResponse(child))
	}
	return node
}
