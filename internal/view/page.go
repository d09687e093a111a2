package view

import (
	"github.com/ArtemShamro/roadmap-generator/internal/domain"
)

// 页面文案
const (
	IntroTitle          = "Roadmap generator"
	IntroSubtitle       = "Roadmap обучения любому навыку"
	GeneratePlaceholder = "Введите навык или профессию которую хотели бы освоить, например 'разработчик бэкенда на Python'"
	UpdatePlaceholder   = "Введите любую команду для редактирования roadmap, например 'добавь пункты ...' 'сократи количество пунктов...' и т.д."
	ResetLabel          = "Сбросить"
	SubmitLabel         = "Отправить"
	ArticlesHeading     = "Статьи c habr:"
	NoArticlesText      = "Нет статей"
)

// ArticleView 侧边栏中的一篇文章
type ArticleView struct {
	ID      int64
	Title   string
	Link    string
	Preview string
}

// PanelView 文章侧边栏
type PanelView struct {
	Open     bool
	StepName string
	Error    string
	Articles []ArticleView
}

// Empty 没有可展示的文章
func (p PanelView) Empty() bool {
	return len(p.Articles) == 0
}

// Page 整个页面的视图模型
type Page struct {
	Bound       bool
	RoadmapID   string
	Title       string
	Tree        *NodeView
	Input       string
	Placeholder string
	Error       string
	Panel       PanelView
}

// NewPage 由会话构造页面。未绑定时展示介绍，已绑定时展示 roadmap 树。
func NewPage(sess *domain.Session, linkTemplate string) *Page {
	page := &Page{Placeholder: GeneratePlaceholder}
	if sess == nil {
		return page
	}
	page.Input = sess.Input
	page.Error = sess.LastError
	if sess.Bound() {
		page.Bound = true
		page.RoadmapID = sess.RoadmapID
		page.Title = sess.Title
		page.Placeholder = UpdatePlaceholder
		page.Tree = BuildTree(sess.Tree, 0)
	}
	page.Panel = NewPanel(&sess.Panel, linkTemplate)
	if page.Panel.Open {
		MarkSelected(page.Tree, sess.Panel.StepKey)
	}
	return page
}

// NewPanel 构造侧边栏视图，只包含标题非空的文章
func NewPanel(state *domain.PanelState, linkTemplate string) PanelView {
	if state == nil || !state.Open {
		return PanelView{}
	}
	panel := PanelView{Open: true, Error: state.Error}
	if state.Step != nil {
		panel.StepName = state.Step.Name
	}
	for _, hit := range state.Visible() {
		panel.Articles = append(panel.Articles, ArticleView{
			ID:      hit.Article.ID,
			Title:   hit.Article.Name,
			Link:    domain.ArticleLink(linkTemplate, hit.Article.ID),
			Preview: domain.Preview(hit.Article.Text),
		})
	}
	return panel
}
