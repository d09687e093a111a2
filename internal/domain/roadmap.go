package domain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/zeebo/blake3"
)

// RoadmapNode roadmap 树节点。
// Title 为分节标题，Name 为可点击的步骤，Steps 为下一层级的有序子节点。
// 三者都可以缺失，缺失即不渲染对应元素。
type RoadmapNode struct {
	Title string         `json:"title,omitempty"`
	Name  string         `json:"name,omitempty"`
	Steps []*RoadmapNode `json:"steps,omitempty"`

	// Key 由 AssignKeys 计算，不参与序列化
	Key string `json:"-"`
}

// RoadmapResult Agent 服务 /generate 与 /update 的响应
type RoadmapResult struct {
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	Structure *RoadmapNode `json:"structure"`
}

// UnmarshalJSON 宽松解析：类型不符的字段视为缺失，steps 中的非对象元素直接跳过
func (n *RoadmapNode) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// 非对象节点：保持零值，由上层丢弃
		*n = RoadmapNode{}
		return nil
	}

	node := RoadmapNode{}
	if v, ok := raw["title"]; ok {
		_ = json.Unmarshal(v, &node.Title)
	}
	if v, ok := raw["name"]; ok {
		_ = json.Unmarshal(v, &node.Name)
	}
	if v, ok := raw["steps"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err == nil {
			for _, item := range items {
				if !isJSONObject(item) {
					continue
				}
				child := &RoadmapNode{}
				if err := json.Unmarshal(item, child); err != nil {
					continue
				}
				node.Steps = append(node.Steps, child)
			}
		}
	}
	*n = node
	return nil
}

func isJSONObject(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// DecodeRoadmap 解析 roadmap JSON，null 或非对象返回 nil
func DecodeRoadmap(data []byte) (*RoadmapNode, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !isJSONObject(trimmed) {
		return nil, nil
	}
	node := &RoadmapNode{}
	if err := json.Unmarshal(trimmed, node); err != nil {
		return nil, err
	}
	AssignKeys(node)
	return node, nil
}

// AssignKeys 为整棵树计算稳定的节点 Key。
// Key = blake3(父 Key, title, name, 同内容兄弟节点中的序号)，
// 与节点在数组中的绝对位置无关，插入无关兄弟节点不会改变其他节点的 Key。
func AssignKeys(root *RoadmapNode) {
	if root == nil {
		return
	}
	root.Key = nodeKey("", root, 0)
	assignChildKeys(root)
}

func assignChildKeys(parent *RoadmapNode) {
	seen := make(map[string]int, len(parent.Steps))
	for _, child := range parent.Steps {
		if child == nil {
			continue
		}
		content := child.Title + "\x00" + child.Name
		occurrence := seen[content]
		seen[content] = occurrence + 1

		child.Key = nodeKey(parent.Key, child, occurrence)
		assignChildKeys(child)
	}
}

func nodeKey(parentKey string, node *RoadmapNode, occurrence int) string {
	hasher := blake3.New()
	hasher.Write([]byte(parentKey))
	hasher.Write([]byte{0})
	hasher.Write([]byte(node.Title))
	hasher.Write([]byte{0})
	hasher.Write([]byte(node.Name))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strconv.Itoa(occurrence)))
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// FindByKey 先序查找 Key 对应的节点
func FindByKey(root *RoadmapNode, key string) *RoadmapNode {
	if root == nil || key == "" {
		return nil
	}
	if root.Key == key {
		return root
	}
	for _, child := range root.Steps {
		if found := FindByKey(child, key); found != nil {
			return found
		}
	}
	return nil
}

// Clone 深拷贝节点（含 Key）
func (n *RoadmapNode) Clone() *RoadmapNode {
	if n == nil {
		return nil
	}
	out := &RoadmapNode{Title: n.Title, Name: n.Name, Key: n.Key}
	if len(n.Steps) > 0 {
		out.Steps = make([]*RoadmapNode, 0, len(n.Steps))
		for _, child := range n.Steps {
			if child == nil {
				continue
			}
			out.Steps = append(out.Steps, child.Clone())
		}
	}
	return out
}
