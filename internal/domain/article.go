package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	PreviewLimit    = 100
	PreviewEllipsis = "..."
	NoContentText   = "Нет содержимого"
)

// Article 检索服务返回的文章
type Article struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Text        string   `json:"text"`
	Complexity  string   `json:"complexity,omitempty"`
	ReadingTime int      `json:"reading_time,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SearchHit /search 响应数组中的一项
type SearchHit struct {
	Article  Article `json:"article"`
	Distance float64 `json:"distance,omitempty"`
}

// Valid 标题去除空白后非空
func (h SearchHit) Valid() bool {
	return strings.TrimSpace(h.Article.Name) != ""
}

// ValidArticles 过滤掉标题为空的文章，保持原有顺序
func ValidArticles(hits []SearchHit) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Valid() {
			out = append(out, hit)
		}
	}
	return out
}

// ArticleLink 按模板生成文章链接
func ArticleLink(template string, id int64) string {
	if template == "" {
		return ""
	}
	return fmt.Sprintf(template, id)
}

// Preview 生成文章预览：去掉 markdown 标记，超过 100 个字符截断并追加省略号。
// 去掉标记后没有文字（例如只有代码块）时使用原文。
func Preview(markdown string) string {
	plain := PlainText(markdown)
	if plain == "" {
		plain = strings.TrimSpace(markdown)
	}
	if plain == "" {
		return NoContentText
	}
	runes := []rune(plain)
	if len(runes) > PreviewLimit {
		return string(runes[:PreviewLimit]) + PreviewEllipsis
	}
	return plain
}

var (
	markdownParserInstance goldmark.Markdown
	markdownParserOnce     sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownParserInstance
}

// PlainText 提取 markdown 中的纯文本，空白折叠为单个空格。代码块内容不计入。
func PlainText(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	source := []byte(markdown)
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
