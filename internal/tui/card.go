package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/liangyou/bvm/internal/i18n"
	"github.com/liangyou/bvm/pkg/models"
)

const cardWidth = 44

var (
	activeColor   = lipgloss.Color("46")
	inactiveColor = lipgloss.Color("240")
	invalidColor  = lipgloss.Color("196")
	accentColor   = lipgloss.Color("86")

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(inactiveColor).
			Padding(0, 1).
			Width(cardWidth)
	versionStyle = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// CardState 描述渲染一张卡片时的附加状态。
type CardState struct {
	Updating bool
	Selected bool
}

// RenderCard 用 lipgloss 渲染单个安装：激活的卡片为绿色边框，其余为灰色。
func RenderCard(lang string, item models.Installation, state CardState) string {
	style := cardStyle
	switch {
	case item.IsActive:
		style = style.BorderForeground(activeColor)
	case state.Selected:
		style = style.BorderForeground(accentColor)
	}
	if state.Selected {
		style = style.Border(lipgloss.ThickBorder())
	}

	title := item.Version
	if title == "" {
		title = "?"
	}
	lines := []string{
		versionStyle.Render(title),
		field(lang, "Version", item.Version),
		field(lang, "Date", item.BuildDate),
		field(lang, "Hash", item.BuildHash),
		field(lang, "Path", item.Path),
		statusLine(lang, item, state.Updating),
	}
	return style.Render(strings.Join(lines, "\n"))
}

// RenderCards 纵向排列多张卡片。
func RenderCards(lang string, items []models.Installation, updating func(string) bool) string {
	cards := make([]string, 0, len(items))
	for _, item := range items {
		state := CardState{}
		if updating != nil {
			state.Updating = updating(item.Path)
		}
		cards = append(cards, RenderCard(lang, item, state))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func field(lang, label, value string) string {
	if value == "" {
		value = "-"
	}
	return fmt.Sprintf("%s %s", labelStyle.Render(i18n.T(lang, label)+":"), value)
}

func statusLine(lang string, item models.Installation, updating bool) string {
	switch {
	case updating:
		return lipgloss.NewStyle().Foreground(inactiveColor).Render("… " + i18n.T(lang, "Updating"))
	case !item.IsValid:
		return lipgloss.NewStyle().Foreground(invalidColor).Render(i18n.T(lang, "Invalid"))
	case item.IsActive:
		return lipgloss.NewStyle().Foreground(activeColor).Render("[x] " + i18n.T(lang, "Activated"))
	default:
		return lipgloss.NewStyle().Foreground(inactiveColor).Render("[ ] " + i18n.T(lang, "Active"))
	}
}
