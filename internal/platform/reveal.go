package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Runner 启动外部命令。
type Runner func(ctx context.Context, name string, args ...string) error

// Revealer 在系统文件管理器中打开安装所在的目录。
type Revealer struct {
	goos func() string
	run  Runner
}

// NewRevealer 创建 Revealer。
func NewRevealer() *Revealer {
	return &Revealer{goos: currentOS, run: startDetached}
}

// Reveal 打开 path 所在的目录；path 为目录时直接打开它。
func (r *Revealer) Reveal(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("platform: reveal %s: %w", path, err)
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}

	name, args, err := opener(r.goos(), dir)
	if err != nil {
		return err
	}
	if err := r.run(ctx, name, args...); err != nil {
		return fmt.Errorf("platform: %s: %w", name, err)
	}
	return nil
}

func opener(goos, dir string) (string, []string, error) {
	switch goos {
	case "linux":
		return "xdg-open", []string{dir}, nil
	case "darwin":
		return "open", []string{dir}, nil
	case "windows":
		return "explorer", []string{dir}, nil
	default:
		return "", nil, fmt.Errorf("platform: reveal is not supported on %s", goos)
	}
}

// startDetached 启动文件管理器后不等待其退出。
func startDetached(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func currentOS() string { return runtime.GOOS }
