package view

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
)

// Renderer 渲染页面模板
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer 从 fsys 中的 templates/*.html 解析模板
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	tmpl, err := template.New("roadmap").Funcs(template.FuncMap{
		"intro_title":      func() string { return IntroTitle },
		"intro_subtitle":   func() string { return IntroSubtitle },
		"reset_label":      func() string { return ResetLabel },
		"submit_label":     func() string { return SubmitLabel },
		"articles_heading": func() string { return ArticlesHeading },
		"no_articles":      func() string { return NoArticlesText },
	}).ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("解析页面模板失败: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render 渲染整个页面
func (r *Renderer) Render(w io.Writer, page *Page) error {
	return r.tmpl.ExecuteTemplate(w, "page", page)
}

// RenderTree 只渲染 roadmap 树
func (r *Renderer) RenderTree(w io.Writer, tree *NodeView) error {
	return r.tmpl.ExecuteTemplate(w, "node", tree)
}
