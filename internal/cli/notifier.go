package cli

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/liangyou/bvm/internal/activation"
	"github.com/liangyou/bvm/internal/i18n"
	"github.com/liangyou/bvm/internal/installation"
	"github.com/liangyou/bvm/internal/storage"
	"github.com/liangyou/bvm/internal/verify"
)

// Severity 是状态消息的级别。
type Severity int

const (
	Info Severity = iota
	Ongoing
	Positive
	Warning
	Negative
)

func (s Severity) String() string {
	switch s {
	case Ongoing:
		return "ongoing"
	case Positive:
		return "positive"
	case Warning:
		return "warning"
	case Negative:
		return "negative"
	default:
		return "info"
	}
}

// Notifier 向用户报告一条状态消息。
type Notifier interface {
	Notify(severity Severity, message string)
}

// ColorNotifier 按级别着色输出消息。
type ColorNotifier struct {
	mu     sync.Mutex
	out    io.Writer
	styles map[Severity]*color.Color
	marks  map[Severity]string
}

// NewColorNotifier 创建输出到 out 的通知器，useColor=false 时输出纯文本。
func NewColorNotifier(out io.Writer, useColor bool) *ColorNotifier {
	styles := map[Severity]*color.Color{
		Info:     color.New(color.FgCyan),
		Ongoing:  color.New(color.FgHiBlack),
		Positive: color.New(color.FgGreen),
		Warning:  color.New(color.FgYellow),
		Negative: color.New(color.FgRed, color.Bold),
	}
	for _, c := range styles {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &ColorNotifier{
		out:    out,
		styles: styles,
		marks: map[Severity]string{
			Info:     "•",
			Ongoing:  "…",
			Positive: "✓",
			Warning:  "!",
			Negative: "✗",
		},
	}
}

func (n *ColorNotifier) Notify(severity Severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.styles[severity].Fprintf(n.out, "%s %s\n", n.marks[severity], message)
}

// classify 把错误映射为级别与面向用户的标题。
func classify(err error) (Severity, string) {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return Warning, "Already added this blender"
	case errors.Is(err, activation.ErrBusy):
		return Warning, "Another activation is in progress"
	case errors.Is(err, installation.ErrActive):
		return Warning, "Installation is active, use --force"
	case errors.Is(err, storage.ErrPersistence):
		return Negative, "Failed to save changes"
	case errors.Is(err, verify.ErrNotFound):
		return Negative, "Blender executable not found"
	case errors.Is(err, verify.ErrInvalid):
		return Negative, "Invalid Blender"
	default:
		return Negative, ""
	}
}

// describeError 返回翻译后的错误描述。
func describeError(lang string, err error) (Severity, string) {
	severity, headline := classify(err)
	if headline == "" {
		return severity, err.Error()
	}
	return severity, fmt.Sprintf("%s (%v)", i18n.T(lang, headline), err)
}
