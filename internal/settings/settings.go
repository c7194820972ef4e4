// Package settings 保存跨进程、跨重启可见的全局设置，例如当前激活的 Blender。
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	KeyBlenderPath    = "blender_path"
	KeyBlenderVersion = "blender_version"
	KeyLanguage       = "language"
)

// Store 是注入给各组件的全局键值设置。
type Store interface {
	Get(key string) string
	Set(key, value string) error
	// SetMany 原子地写入多个键。
	SetMany(values map[string]string) error
}

// Active 返回已发布的 Blender 路径与主次版本号。
func Active(s Store) (path, version string) {
	return s.Get(KeyBlenderPath), s.Get(KeyBlenderVersion)
}

// Publish 发布激活的 Blender 路径与主次版本号。
func Publish(s Store, path, version string) error {
	return s.SetMany(map[string]string{
		KeyBlenderPath:    path,
		KeyBlenderVersion: version,
	})
}

// FileStore 将设置保存为 TOML 文件，并在内存中缓存。
type FileStore struct {
	path   string
	mu     sync.RWMutex
	values map[string]string
}

// Load 读取 path 处的设置文件，文件不存在时返回空设置。
func Load(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("settings: path is not configured")
	}
	s := &FileStore{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &s.values); err != nil {
		return nil, fmt.Errorf("settings: parsing %s: %w", path, err)
	}
	return s, nil
}

// Get 返回键对应的值，不存在时为空串。
func (s *FileStore) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set 写入单个键。
func (s *FileStore) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

// SetMany 写入多个键；落盘失败时内存中的值保持不变。
func (s *FileStore) SetMany(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.values)+len(values))
	for k, v := range s.values {
		next[k] = v
	}
	for k, v := range values {
		next[k] = v
	}
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *FileStore) writeLocked(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("settings: ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(values); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("settings: replace %s: %w", s.path, err)
	}
	return nil
}

// Memory 是不落盘的 Store，用于测试与一次性命令。
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	// Err 非空时所有写入都返回该错误。
	Err error
}

// NewMemory 创建内存设置。
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

func (m *Memory) Set(key, value string) error {
	return m.SetMany(map[string]string{key: value})
}

func (m *Memory) SetMany(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}
