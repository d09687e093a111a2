// Package tui 终端版 roadmap 客户端
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"k8s.io/klog/v2"

	"github.com/ArtemShamro/roadmap-generator/internal/domain"
	"github.com/ArtemShamro/roadmap-generator/internal/service/session"
	"github.com/ArtemShamro/roadmap-generator/internal/service/statemachine"
	"github.com/ArtemShamro/roadmap-generator/internal/view"
)

type focus int

const (
	focusInput focus = iota
	focusTree
)

// Options 终端客户端配置
type Options struct {
	SearchK      int
	LinkTemplate string
	// Timeout 单次后端调用的超时，0 表示不限制
	Timeout time.Duration
}

// submitResultMsg 生成/编辑命令的结果
type submitResultMsg struct {
	epoch  uint64
	event  statemachine.SessionEvent
	result *domain.RoadmapResult
	err    error
}

// searchResultMsg 文章检索结果
type searchResultMsg struct {
	req  domain.SearchRequest
	hits []domain.SearchHit
	err  error
}

// Model 终端客户端状态。后端调用以 tea.Cmd 执行，结果以消息回到事件循环。
type Model struct {
	commands session.Commands
	sm       *statemachine.SessionStateMachine
	opts     Options

	sess  *domain.Session
	tree  *view.NodeView
	nodes []*view.NodeView

	input  textarea.Model
	keys   keyMap
	help   help.Model
	focus  focus
	cursor int

	// pending 有命令在执行，期间拒绝新的提交
	pending bool
	// epoch 每次重置递增，重置前发出的命令结果被丢弃
	epoch     uint64
	searching bool
	status    string

	width    int
	height   int
	quitting bool
}

// NewModel 创建空会话的终端客户端
func NewModel(commands session.Commands, opts Options) Model {
	if opts.SearchK <= 0 {
		opts.SearchK = 10
	}

	ta := textarea.New()
	ta.Placeholder = view.GeneratePlaceholder
	ta.ShowLineNumbers = false
	ta.CharLimit = 2000
	ta.SetHeight(3)
	ta.SetWidth(80)
	// enter 用于提交
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	return Model{
		commands: commands,
		sm:       statemachine.NewSessionStateMachine(),
		opts:     opts,
		sess:     domain.NewSession("tui"),
		input:    ta,
		keys:     defaultKeyMap(),
		help:     help.New(),
		width:    120,
		height:   30,
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(max(20, msg.Width-4))
		m.help.Width = msg.Width
		return m, nil

	case submitResultMsg:
		return m.applySubmit(msg), nil

	case searchResultMsg:
		return m.applySearch(msg), nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Reset):
			return m.reset(), nil
		case key.Matches(msg, m.keys.ClosePanel):
			if m.sess.Panel.Open {
				m.sess.Panel.Close()
				m.searching = false
			} else {
				m = m.focusOn(focusInput)
			}
			return m, nil
		case key.Matches(msg, m.keys.Focus):
			if m.focus == focusInput && len(m.nodes) > 0 {
				return m.focusOn(focusTree), nil
			}
			return m.focusOn(focusInput), nil
		}

		if m.focus == focusTree {
			return m.updateTree(msg)
		}
		if key.Matches(msg, m.keys.Submit) {
			return m.submit()
		}
	}

	if m.focus == focusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateTree(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.nodes)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		return m.openAtCursor()
	case msg.String() == "q":
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) focusOn(f focus) Model {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	return m
}

// submit 提交输入框内容。输入框无论结果如何都会被清空。
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.pending {
		m.status = domain.DescribeFailure(domain.ErrSubmitBusy)
		return m, nil
	}

	text := m.input.Value()
	m.input.Reset()
	m.pending = true
	m.status = ""

	event := statemachine.CommandEvent(statemachine.StatusOf(m.sess.RoadmapID))
	roadmapID := m.sess.RoadmapID
	epoch := m.epoch
	commands := m.commands
	timeout := m.opts.Timeout

	return m, func() tea.Msg {
		ctx, cancel := callContext(timeout)
		defer cancel()

		var result *domain.RoadmapResult
		var err error
		if event == statemachine.EventUpdate {
			result, err = commands.Update(ctx, roadmapID, text)
		} else {
			result, err = commands.Generate(ctx, text)
		}
		return submitResultMsg{epoch: epoch, event: event, result: result, err: err}
	}
}

func (m Model) applySubmit(msg submitResultMsg) Model {
	if msg.epoch != m.epoch {
		klog.V(6).Infof("丢弃重置前发出的命令结果: event=%s", msg.event)
		return m
	}
	m.pending = false

	if msg.err != nil {
		m.sess.LastError = domain.DescribeFailure(msg.err)
		return m
	}

	from := statemachine.StatusOf(m.sess.RoadmapID)
	if _, err := m.sm.Transition(from, msg.event, m.sess.ID); err != nil {
		m.sess.LastError = domain.DescribeFailure(err)
		return m
	}
	m.sess.Apply(msg.result)
	m = m.rebuildTree()
	m.input.Placeholder = view.UpdatePlaceholder
	if len(m.nodes) > 0 {
		m = m.focusOn(focusTree)
	}
	return m
}

func (m Model) openAtCursor() (tea.Model, tea.Cmd) {
	if m.cursor < 0 || m.cursor >= len(m.nodes) {
		return m, nil
	}

	var cmd tea.Cmd
	m.nodes[m.cursor].Click(func(node *domain.RoadmapNode) {
		req, search := m.sess.Panel.OpenFor(node)
		if !search {
			return
		}
		m.searching = true
		commands := m.commands
		k := m.opts.SearchK
		timeout := m.opts.Timeout
		cmd = func() tea.Msg {
			ctx, cancel := callContext(timeout)
			defer cancel()
			hits, err := commands.SearchArticles(ctx, req.Query, k)
			return searchResultMsg{req: req, hits: hits, err: err}
		}
	})
	return m, cmd
}

func (m Model) applySearch(msg searchResultMsg) Model {
	if !m.sess.Panel.ApplySearch(msg.req, msg.hits, msg.err) {
		klog.V(6).Infof("丢弃过期的检索结果: query=%q, seq=%d, latest=%d", msg.req.Query, msg.req.Seq, m.sess.Panel.Seq)
		return m
	}
	m.searching = false
	return m
}

// reset 回到空状态；进行中的命令结果到达后会被丢弃
func (m Model) reset() Model {
	if _, err := m.sm.Transition(statemachine.StatusOf(m.sess.RoadmapID), statemachine.EventReset, m.sess.ID); err != nil {
		m.sess.LastError = domain.DescribeFailure(err)
		return m
	}
	m.sess.Reset()
	m.epoch++
	m.pending = false
	m.searching = false
	m.status = ""
	m.input.Reset()
	m.input.Placeholder = view.GeneratePlaceholder
	m = m.rebuildTree()
	return m.focusOn(focusInput)
}

func (m Model) rebuildTree() Model {
	m.tree = view.BuildTree(m.sess.Tree, 0)
	m.nodes = view.Flatten(m.tree)
	if m.cursor >= len(m.nodes) {
		m.cursor = max(0, len(m.nodes)-1)
	}
	// 光标默认落在第一个可点击的步骤上
	if m.cursor < len(m.nodes) && !m.nodes[m.cursor].Clickable() {
		for i, n := range m.nodes {
			if n.Clickable() {
				m.cursor = i
				break
			}
		}
	}
	return m
}

// Session 当前会话状态
func (m Model) Session() *domain.Session {
	return m.sess
}

func callContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
