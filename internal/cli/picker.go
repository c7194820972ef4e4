package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Picker 让用户选择一个文件路径。
type Picker interface {
	PickPath(ctx context.Context, prompt string) (string, error)
}

// Confirmer 让用户确认一个操作。
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Prompt 从输入流读取用户的回答，同时实现 Picker 与 Confirmer。
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt 创建基于终端输入的 Prompt。
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

func (p *Prompt) PickPath(ctx context.Context, prompt string) (string, error) {
	answer, err := p.ask(ctx, prompt+": ")
	if err != nil {
		return "", err
	}
	answer = strings.Trim(answer, `"'`)
	if answer == "" {
		return "", errors.New("cli: no path given")
	}
	return answer, nil
}

func (p *Prompt) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := p.ask(ctx, question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "是":
		return true, nil
	default:
		return false, nil
	}
}

// ask 读取一行输入。读取阻塞期间 ctx 取消时立即返回。
func (p *Prompt) ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && !(errors.Is(r.err, io.EOF) && r.line != "") {
			return "", fmt.Errorf("cli: read input: %w", r.err)
		}
		return strings.TrimSpace(r.line), nil
	}
}
