// Package tui 提供交互式的安装切换界面。
package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/liangyou/bvm/internal/activation"
	"github.com/liangyou/bvm/internal/i18n"
	"github.com/liangyou/bvm/internal/installation"
	"github.com/liangyou/bvm/pkg/models"
)

// Controller 是界面需要的激活能力。
type Controller interface {
	View() []models.Installation
	Updating(path string) bool
	TryActivate(ctx context.Context, path string) (models.Installation, error)
	Refresh(ctx context.Context) ([]models.Installation, error)
}

// Model 是 bubbletea 的界面状态。
type Model struct {
	ctx      context.Context
	ctrl     Controller
	lang     string
	items    []models.Installation
	cursor   int
	inFlight string
	status   string
	failed   bool
}

// New 创建界面模型。
func New(ctx context.Context, ctrl Controller, lang string) Model {
	return Model{ctx: ctx, ctrl: ctrl, lang: lang}
}

// Run 启动交互界面并阻塞到用户退出。
func Run(ctx context.Context, ctrl Controller, lang string, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	if _, err := tea.NewProgram(New(ctx, ctrl, lang), opts...).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

type loadedMsg struct {
	items []models.Installation
	err   error
}

type activatedMsg struct {
	item models.Installation
	err  error
}

func (m Model) Init() tea.Cmd {
	return m.loadCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "r":
			return m, m.loadCmd()
		case " ", "enter":
			return m.toggle()
		}
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.setItems(msg.items)
		return m, nil

	case activatedMsg:
		m.inFlight = ""
		m.setItems(m.ctrl.View())
		if msg.err != nil {
			m.setStatus(describe(m.lang, msg.err), true)
		} else {
			m.setStatus(i18n.Tf(m.lang, "Activated %s", msg.item.Version), false)
		}
		return m, nil
	}
	return m, nil
}

// toggle 激活光标所在的安装，已激活的安装会被重新校验。校验进行中时忽略新的切换。
func (m Model) toggle() (tea.Model, tea.Cmd) {
	if len(m.items) == 0 {
		return m, nil
	}
	if m.inFlight != "" {
		m.setStatus(i18n.T(m.lang, "Another activation is in progress"), true)
		return m, nil
	}
	target := m.items[m.cursor]
	if !target.IsValid {
		return m, nil
	}
	m.inFlight = target.Path
	m.setStatus(i18n.T(m.lang, "Verify Blender..."), false)

	ctx, ctrl := m.ctx, m.ctrl
	return m, func() tea.Msg {
		item, err := ctrl.TryActivate(ctx, target.Path)
		return activatedMsg{item: item, err: err}
	}
}

func (m Model) loadCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		items, err := ctrl.Refresh(ctx)
		return loadedMsg{items: items, err: err}
	}
}

func (m *Model) setItems(items []models.Installation) {
	var selected string
	if m.cursor < len(m.items) {
		selected = m.items[m.cursor].Path
	}
	installation.SortInstallations(items)
	m.items = items
	m.cursor = 0
	for i, item := range items {
		if item.Path == selected {
			m.cursor = i
		}
	}
}

func (m *Model) setStatus(text string, failed bool) {
	m.status = text
	m.failed = failed
}

func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("bvm")

	var body string
	if len(m.items) == 0 {
		body = lipgloss.NewStyle().Foreground(inactiveColor).Render(i18n.T(m.lang, "No Blender registered"))
	} else {
		cards := make([]string, 0, len(m.items))
		for i, item := range m.items {
			cards = append(cards, RenderCard(m.lang, item, CardState{
				Updating: item.Path == m.inFlight || m.ctrl.Updating(item.Path),
				Selected: i == m.cursor,
			}))
		}
		body = lipgloss.JoinVertical(lipgloss.Left, cards...)
	}

	statusColor := activeColor
	if m.failed {
		statusColor = invalidColor
	}
	status := lipgloss.NewStyle().Foreground(statusColor).Render(m.status)
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).
		Render("[↑↓] move  [space] activate  [r] reload  [q] quit")

	return lipgloss.JoinVertical(lipgloss.Left, title, body, status, help)
}

func describe(lang string, err error) string {
	if errors.Is(err, activation.ErrBusy) {
		return i18n.T(lang, "Another activation is in progress")
	}
	return i18n.Tf(lang, "Activation failed: %s", err.Error())
}
