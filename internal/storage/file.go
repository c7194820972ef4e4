package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/liangyou/bvm/pkg/models"
)

// FileRegistry 通过单个 JSON 文件持久化登记表。
type FileRegistry struct {
	path string
	mu   sync.RWMutex
}

// registryFile 表示 installations.json 的结构。
type registryFile struct {
	Installations []models.Installation `json:"installations"`
}

// NewFileRegistry 构造一个 JSON 文件登记表。
func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

// Add 登记新的安装，路径重复时返回 ErrDuplicate。
func (r *FileRegistry) Add(_ context.Context, item models.Installation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.readLocked()
	if err != nil {
		return err
	}
	for _, existing := range items {
		if existing.Path == item.Path {
			return ErrDuplicate
		}
	}
	if item.IsActive {
		deactivateExcept(items, item.Path)
	}
	return r.writeLocked(append(items, item))
}

// List 返回所有记录。
func (r *FileRegistry) List(_ context.Context) ([]models.Installation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readLocked()
}

// Get 返回指定路径的记录。
func (r *FileRegistry) Get(_ context.Context, path string) (models.Installation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items, err := r.readLocked()
	if err != nil {
		return models.Installation{}, err
	}
	for _, item := range items {
		if item.Path == path {
			return item, nil
		}
	}
	return models.Installation{}, ErrNotFound
}

// Update 覆盖指定路径的记录；激活的记录会同时取消其他记录的激活状态。
func (r *FileRegistry) Update(_ context.Context, item models.Installation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.readLocked()
	if err != nil {
		return err
	}
	idx := indexOf(items, item.Path)
	if idx < 0 {
		return ErrNotFound
	}
	items[idx] = item
	if item.IsActive {
		deactivateExcept(items, item.Path)
	}
	return r.writeLocked(items)
}

// Remove 删除指定路径的记录，不存在时不报错。
func (r *FileRegistry) Remove(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.readLocked()
	if err != nil {
		return err
	}
	filtered := items[:0]
	for _, item := range items {
		if item.Path != path {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == len(items) {
		return nil
	}
	return r.writeLocked(filtered)
}

// ExistsByPath 判断路径是否已登记。
func (r *FileRegistry) ExistsByPath(_ context.Context, path string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items, err := r.readLocked()
	if err != nil {
		return false, err
	}
	return indexOf(items, path) >= 0, nil
}

// DeactivateOthers 取消除 path 之外所有记录的激活状态。
func (r *FileRegistry) DeactivateOthers(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.readLocked()
	if err != nil {
		return err
	}
	if !deactivateExcept(items, path) {
		return nil
	}
	return r.writeLocked(items)
}

// SetActive 让且仅让 path 处于激活状态。
func (r *FileRegistry) SetActive(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.readLocked()
	if err != nil {
		return err
	}
	if path != "" && indexOf(items, path) < 0 {
		return ErrNotFound
	}
	for i := range items {
		items[i].IsActive = path != "" && items[i].Path == path
	}
	return r.writeLocked(items)
}

// Close 对文件实现无需释放资源。
func (r *FileRegistry) Close() error { return nil }

func (r *FileRegistry) readLocked() ([]models.Installation, error) {
	if r.path == "" {
		return nil, errors.New("storage: registry path is not configured")
	}

	file, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Installation{}, nil
		}
		return nil, err
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if len(bytes) == 0 {
		return []models.Installation{}, nil
	}

	var doc registryFile
	if err := json.Unmarshal(bytes, &doc); err != nil {
		return nil, err
	}
	if doc.Installations == nil {
		doc.Installations = []models.Installation{}
	}
	return doc.Installations, nil
}

// writeLocked 先写临时文件再重命名，读者不会看到写了一半的文件。
func (r *FileRegistry) writeLocked(items []models.Installation) error {
	if r.path == "" {
		return errors.New("storage: registry path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return persistErr("ensure registry dir", err)
	}

	data, err := json.MarshalIndent(registryFile{Installations: items}, "", "  ")
	if err != nil {
		return persistErr("encode registry", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".installations-*.json")
	if err != nil {
		return persistErr("create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return persistErr("write registry", err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr("close registry", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return persistErr("replace registry", err)
	}
	return nil
}

func indexOf(items []models.Installation, path string) int {
	for i := range items {
		if items[i].Path == path {
			return i
		}
	}
	return -1
}

func deactivateExcept(items []models.Installation, path string) bool {
	changed := false
	for i := range items {
		if items[i].Path != path && items[i].IsActive {
			items[i].IsActive = false
			changed = true
		}
	}
	return changed
}
