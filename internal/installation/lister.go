package installation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/liangyou/bvm/internal/storage"
	"github.com/liangyou/bvm/internal/verify"
	"github.com/liangyou/bvm/pkg/models"
)

// Lister 读取登记表中的安装。
type Lister struct {
	registry storage.Registry
}

// NewLister 创建列表服务。
func NewLister(registry storage.Registry) *Lister {
	return &Lister{registry: registry}
}

// Installations 返回所有安装，按版本号降序排列，未通过校验的排在最后。
func (l *Lister) Installations(ctx context.Context) ([]models.Installation, error) {
	if l.registry == nil {
		return nil, errors.New("lister: registry is required")
	}
	items, err := l.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("lister: list: %w", err)
	}
	SortInstallations(items)
	return items, nil
}

// Active 返回当前激活的安装，没有时返回 nil。可执行文件已不存在时返回 verify.ErrNotFound。
func (l *Lister) Active(ctx context.Context) (*models.Installation, error) {
	items, err := l.Installations(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if !item.IsActive {
			continue
		}
		if err := validateExecutable(item.Path); err != nil {
			return &item, err
		}
		return &item, nil
	}
	return nil, nil
}

// SortInstallations 按版本号降序排序，版本相同时按路径排序。
func SortInstallations(items []models.Installation) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsValid != b.IsValid {
			return a.IsValid
		}
		if c := compareVersions(a.Version, b.Version); c != 0 {
			return c > 0
		}
		return a.Path < b.Path
	})
}

// FormatInstallation 格式化单条安装，当前激活的安装以 * 标记。
func FormatInstallation(item models.Installation) string {
	marker := " "
	if item.IsActive {
		marker = "*"
	}
	if !item.IsValid {
		return fmt.Sprintf("%s invalid - %s", marker, item.Path)
	}
	return fmt.Sprintf("%s %s (%s, %s) - %s", marker, item.Version, item.BuildHash, item.BuildDate, item.Path)
}

func validateExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", verify.ErrNotFound, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", verify.ErrNotFound, path)
	}
	return nil
}

func compareVersions(a, b string) int {
	ap := strings.Split(a, ".")
	bp := strings.Split(b, ".")
	n := max(len(ap), len(bp))
	for i := 0; i < n; i++ {
		ai := 0
		if i < len(ap) {
			ai = parseInt(ap[i])
		}
		bi := 0
		if i < len(bp) {
			bi = parseInt(bp[i])
		}
		if ai > bi {
			return 1
		}
		if ai < bi {
			return -1
		}
	}
	return 0
}

func parseInt(value string) int {
	var n int
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			break
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
