package installation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liangyou/bvm/internal/storage"
	"github.com/liangyou/bvm/pkg/models"
)

// ErrActive 表示要移除的安装正处于激活状态。
var ErrActive = errors.New("installation: installation is active, pass force to remove")

// Remover 从登记表移除安装。安装目录本身属于用户，不会被删除。
type Remover struct {
	registry storage.Registry
}

// NewRemover 创建移除服务。
func NewRemover(registry storage.Registry) *Remover {
	return &Remover{registry: registry}
}

// Remove 移除 path 对应的记录并返回剩余记录。force=true 时允许移除激活的安装，
// 全局设置中的路径与版本保持不变。
func (r *Remover) Remove(ctx context.Context, path string, force bool) ([]models.Installation, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("remover: path is required")
	}
	if r.registry == nil {
		return nil, errors.New("remover: registry is required")
	}
	path = storage.NormalizePath(path)

	target, err := r.registry.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("remover: %s: %w", path, err)
	}
	if target.IsActive && !force {
		return nil, fmt.Errorf("remover: %s: %w", path, ErrActive)
	}

	if err := r.registry.Remove(ctx, path); err != nil {
		return nil, fmt.Errorf("remover: remove %s: %w", path, err)
	}

	remaining, err := r.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("remover: reload: %w", err)
	}
	SortInstallations(remaining)
	return remaining, nil
}
