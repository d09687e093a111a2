package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ArtemShamro/roadmap-generator/internal/view"
)

const panelWidth = 48

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var left strings.Builder
	if !m.sess.Bound() {
		left.WriteString(titleStyle.Render(view.IntroTitle))
		left.WriteString("\n")
		left.WriteString(subtitleStyle.Render(view.IntroSubtitle))
		left.WriteString("\n")
	} else {
		left.WriteString(m.renderTree())
	}
	left.WriteString("\n")
	left.WriteString(m.input.View())
	left.WriteString("\n")

	if m.sess.LastError != "" {
		left.WriteString(errorStyle.Render(m.sess.LastError))
		left.WriteString("\n")
	}

	body := left.String()
	if m.sess.Panel.Open {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, "  ", m.renderPanel())
	}

	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatusBar())
}

func (m Model) renderTree() string {
	var b strings.Builder
	for i, node := range m.nodes {
		indent := strings.Repeat("  ", node.Level)
		if node.Title != "" {
			b.WriteString(indent)
			b.WriteString(sectionStyle.Render(node.Title))
			b.WriteString("\n")
		}
		if node.Name == "" {
			continue
		}
		label := node.Name
		style := stepStyle
		if node.Main {
			style = mainStepStyle
		}
		if m.focus == focusTree && i == m.cursor {
			style = cursorStyle
		}
		marker := "• "
		if m.sess.Panel.Open && m.sess.Panel.StepKey == node.Key {
			marker = "▸ "
		}
		b.WriteString(indent)
		b.WriteString(marker)
		b.WriteString(style.Render(label))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPanel() string {
	panel := view.NewPanel(&m.sess.Panel, m.opts.LinkTemplate)

	var b strings.Builder
	b.WriteString(titleStyle.Render(panel.StepName))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(view.ArticlesHeading))
	b.WriteString("\n")
	if panel.Error != "" {
		b.WriteString(errorStyle.Render(panel.Error))
		b.WriteString("\n")
	}
	switch {
	case m.searching:
		b.WriteString(dimStyle.Render("Загрузка..."))
		b.WriteString("\n")
	case panel.Empty():
		b.WriteString(dimStyle.Render(view.NoArticlesText))
		b.WriteString("\n")
	default:
		for _, a := range panel.Articles {
			b.WriteString(articleTitleStyle.Render(a.Title))
			b.WriteString("\n")
			if a.Link != "" {
				b.WriteString(dimStyle.Render(a.Link))
				b.WriteString("\n")
			}
			b.WriteString(a.Preview)
			b.WriteString("\n\n")
		}
	}
	return panelStyle.Width(panelWidth).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderStatusBar() string {
	var parts []string
	if m.pending {
		parts = append(parts, "Выполняется...")
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	if len(parts) == 0 {
		return m.help.View(m.keys)
	}
	return lipgloss.JoinVertical(lipgloss.Left, statusBarStyle.Render(strings.Join(parts, " · ")), m.help.View(m.keys))
}
