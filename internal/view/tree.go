package view

import "github.com/ArtemShamro/roadmap-generator/internal/domain"

// MainStepLevel 该层级的步骤作为主步骤渲染（更醒目的标题）
const MainStepLevel = 1

// NodeView 渲染用的 roadmap 节点
type NodeView struct {
	Key   string
	Title string
	Name  string
	Level int
	// Main 第一层步骤
	Main bool
	// Selected 当前在侧边栏中打开
	Selected bool

	Node     *domain.RoadmapNode
	Children []*NodeView
}

// Clickable 只有带名称的节点可以点击
func (v *NodeView) Clickable() bool {
	return v != nil && v.Name != ""
}

// Click 以整个节点调用 fn；不可点击的节点不调用并返回 false
func (v *NodeView) Click(fn func(*domain.RoadmapNode)) bool {
	if !v.Clickable() || fn == nil {
		return false
	}
	fn(v.Node)
	return true
}

// BuildTree 把 roadmap 节点递归转换为视图。nil 节点返回 nil。
func BuildTree(node *domain.RoadmapNode, level int) *NodeView {
	if node == nil {
		return nil
	}
	v := &NodeView{
		Key:   node.Key,
		Title: node.Title,
		Name:  node.Name,
		Level: level,
		Main:  node.Name != "" && level == MainStepLevel,
		Node:  node,
	}
	if len(node.Steps) > 0 {
		v.Children = make([]*NodeView, 0, len(node.Steps))
		for _, step := range node.Steps {
			if child := BuildTree(step, level+1); child != nil {
				v.Children = append(v.Children, child)
			}
		}
	}
	return v
}

// Walk 先序遍历，每个节点恰好访问一次
func Walk(v *NodeView, fn func(*NodeView)) {
	if v == nil {
		return
	}
	fn(v)
	for _, child := range v.Children {
		Walk(child, fn)
	}
}

// Flatten 先序展开为列表
func Flatten(v *NodeView) []*NodeView {
	var out []*NodeView
	Walk(v, func(n *NodeView) {
		out = append(out, n)
	})
	return out
}

// MarkSelected 标记 key 对应的节点
func MarkSelected(v *NodeView, key string) {
	if key == "" {
		return
	}
	Walk(v, func(n *NodeView) {
		n.Selected = n.Key == key
	})
}
