// Package installation 负责 Blender 安装的登记、列表与移除。
package installation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/liangyou/bvm/internal/storage"
	"github.com/liangyou/bvm/internal/verify"
	"github.com/liangyou/bvm/pkg/models"
)

// Reverifier 校验已登记的安装并保存结果，由 activation.Controller 实现。
type Reverifier interface {
	Reverify(ctx context.Context, path string) (models.Installation, error)
}

// Registrar 登记新的 Blender 安装。
type Registrar struct {
	registry storage.Registry
	verifier Reverifier
	names    []string
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistrar 创建登记服务。names 为允许的可执行文件名，为空时使用默认值。
func NewRegistrar(registry storage.Registry, verifier Reverifier, names []string, logger *slog.Logger) *Registrar {
	if len(names) == 0 {
		names = models.DefaultExecutableNames
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		registry: registry,
		verifier: verifier,
		names:    names,
		logger:   logger.With("component", "registrar"),
		now:      time.Now,
	}
}

// Add 登记 path 并立即校验，不改变激活状态。
// 校验失败的记录仍被保存（显示为无效），同时返回校验错误。
func (r *Registrar) Add(ctx context.Context, path string) (models.Installation, error) {
	if r.registry == nil || r.verifier == nil {
		return models.Installation{}, errors.New("registrar: missing dependencies")
	}
	path = storage.NormalizePath(path)
	if path == "" {
		return models.Installation{}, errors.New("registrar: path is required")
	}

	if name := filepath.Base(path); !slices.Contains(r.names, name) {
		return models.Installation{}, fmt.Errorf("%w: %s is not a blender executable", verify.ErrInvalid, name)
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return models.Installation{}, fmt.Errorf("%w: %s", verify.ErrNotFound, path)
	}

	exists, err := r.registry.ExistsByPath(ctx, path)
	if err != nil {
		return models.Installation{}, fmt.Errorf("registrar: check %s: %w", path, err)
	}
	if exists {
		return models.Installation{}, fmt.Errorf("registrar: %s: %w", path, storage.ErrDuplicate)
	}

	pending := models.Installation{Path: path, AddedAt: r.now().UTC()}
	if err := r.registry.Add(ctx, pending); err != nil {
		return models.Installation{}, fmt.Errorf("registrar: add %s: %w", path, err)
	}
	r.logger.Info("installation registered", "path", path)

	item, err := r.verifier.Reverify(ctx, path)
	if err != nil {
		if item.Path == "" {
			item = pending
		}
		return item, err
	}
	return item, nil
}
