// Package verify 通过启动候选可执行文件并解析其输出来校验 Blender 安装。
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/liangyou/bvm/pkg/models"
)

var (
	// ErrNotFound 表示可执行文件路径不存在。
	ErrNotFound = errors.New("verify: executable not found")
	// ErrInvalid 表示没有识别到版本横幅、启动失败或超时。
	ErrInvalid = errors.New("verify: not a valid blender installation")
	// ErrTimeout 与 ErrInvalid 一同返回，说明子进程超时被终止。
	ErrTimeout = errors.New("verify: probe timed out")
)

const waitDelay = 500 * time.Millisecond

// Verifier 启动子进程探测安装并解析版本信息，自身不做持久化。
type Verifier struct {
	timeout   time.Duration
	args      []string
	maxOutput int
	matcher   Matcher
	logger    *slog.Logger
	now       func() time.Time

	onStart func(pid int)
	kill    func(cmd *exec.Cmd) error
}

// Option 用于配置 Verifier。
type Option func(*Verifier)

// WithTimeout 设置子进程的最长运行时间。
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithArgs 设置传给可执行文件的参数。
func WithArgs(args ...string) Option {
	return func(v *Verifier) {
		if len(args) > 0 {
			v.args = append([]string(nil), args...)
		}
	}
}

// WithMaxOutput 设置最多保留的输出字节数。
func WithMaxOutput(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxOutput = n
		}
	}
}

// WithMatcher 替换版本横幅的匹配规则。
func WithMatcher(m Matcher) Option {
	return func(v *Verifier) {
		if m != nil {
			v.matcher = m
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// New 创建 Verifier，默认超时 3 秒，参数为 -b --factory-startup。
func New(opts ...Option) *Verifier {
	v := &Verifier{
		timeout:   models.DefaultVerifyTimeout,
		args:      append([]string(nil), models.DefaultVerifyArgs...),
		maxOutput: 1 << 20,
		matcher:   BlenderMatcher{},
		logger:    slog.Default(),
		now:       time.Now,
		kill:      terminate,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "verify")
	return v
}

// FromConfig 按运行时配置创建 Verifier。
func FromConfig(cfg models.Config, logger *slog.Logger) *Verifier {
	return New(
		WithTimeout(cfg.VerifyTimeout),
		WithArgs(cfg.VerifyArgs...),
		WithMaxOutput(cfg.MaxOutput),
		WithLogger(logger),
	)
}

// Verify 校验 item.Path 指向的安装，返回更新后的副本。
// 成功时填充版本信息并置 IsValid；失败时清空派生字段并返回 ErrNotFound 或 ErrInvalid。
func (v *Verifier) Verify(ctx context.Context, item models.Installation) (models.Installation, error) {
	result := item

	info, err := os.Stat(item.Path)
	if err != nil || info.IsDir() {
		result.ClearMetadata()
		v.logger.Debug("executable missing", "path", item.Path)
		return result, fmt.Errorf("%w: %s", ErrNotFound, item.Path)
	}

	output, err := v.probe(ctx, item.Path)
	if err != nil {
		result.ClearMetadata()
		v.logger.Info("verification failed", "path", item.Path, "error", err)
		return result, err
	}

	banner, ok := scanBanner(output, v.matcher)
	if !ok {
		result.ClearMetadata()
		v.logger.Info("no version banner in output", "path", item.Path, "bytes", len(output))
		return result, fmt.Errorf("%w: no version banner in output of %s", ErrInvalid, item.Path)
	}

	result.Version = banner.Version
	result.BigVersion = banner.BigVersion
	result.BuildHash = banner.BuildHash
	result.BuildDate = banner.BuildDate
	result.IsValid = true
	result.VerifiedAt = v.now().UTC()
	v.logger.Info("verified", "path", item.Path, "version", banner.Version, "hash", banner.BuildHash)
	return result, nil
}

// probe 启动子进程并收集合并后的 stdout/stderr。任何返回路径上子进程都已被终止并回收。
func (v *Verifier) probe(ctx context.Context, path string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, v.args...)
	out := &boundedBuffer{max: v.maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrInvalid, path, err)
	}
	defer func() {
		if err := v.kill(cmd); err != nil {
			v.logger.Warn("terminate probe", "path", path, "pid", cmd.Process.Pid, "error", err)
		}
	}()
	if v.onStart != nil {
		v.onStart(cmd.Process.Pid)
	}

	waitErr := cmd.Wait()

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w after %s", ErrInvalid, ErrTimeout, v.timeout)
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, fmt.Errorf("%w: wait %s: %v", ErrInvalid, path, waitErr)
	}
	if exitErr != nil {
		v.logger.Debug("probe exited with non-zero status", "path", path, "code", exitErr.ExitCode())
	}
	return out.Bytes(), nil
}

// boundedBuffer 只保留前 max 个字节，多余的输出被丢弃。
type boundedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}
