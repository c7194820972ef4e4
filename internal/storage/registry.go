package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/liangyou/bvm/pkg/models"
)

var (
	// ErrNotFound 表示登记表中没有对应路径的记录。
	ErrNotFound = errors.New("storage: installation not found")
	// ErrDuplicate 表示路径已经登记过。
	ErrDuplicate = errors.New("storage: installation already registered")
	// ErrPersistence 表示写入持久化存储失败。
	ErrPersistence = errors.New("storage: persistence failure")
)

// Registry 定义 Blender 安装登记表的读写接口。所有操作彼此原子。
type Registry interface {
	Add(ctx context.Context, item models.Installation) error
	List(ctx context.Context) ([]models.Installation, error)
	Get(ctx context.Context, path string) (models.Installation, error)
	Update(ctx context.Context, item models.Installation) error
	Remove(ctx context.Context, path string) error
	ExistsByPath(ctx context.Context, path string) (bool, error)
	// DeactivateOthers 在一个写入单元内取消除 path 之外所有记录的激活状态。
	DeactivateOthers(ctx context.Context, path string) error
	// SetActive 在一个写入单元内让且仅让 path 处于激活状态，path 为空表示全部取消。
	SetActive(ctx context.Context, path string) error
	Close() error
}

// Open 根据配置创建登记表实现。
func Open(cfg models.Config) (Registry, error) {
	switch cfg.RegistryBackend {
	case models.BackendJSON:
		return NewFileRegistry(cfg.RegistryPath), nil
	case models.BackendSQLite, "":
		return NewSQLiteRegistry(cfg.RegistryPath)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.RegistryBackend)
	}
}

// NormalizePath 统一路径写法，保证同一文件只对应一个键。
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

func persistErr(action string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, action, err)
}
