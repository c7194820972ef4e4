// Package platform 检查运行环境并提供与桌面环境交互的能力。
package platform

import (
	"fmt"
	"os"

	"github.com/liangyou/bvm/pkg/models"
)

var supportedOS = map[string]struct{}{
	"linux":   {},
	"darwin":  {},
	"windows": {},
}

// Checker 校验当前系统是否满足 bvm 的运行要求。
type Checker struct {
	cfg  models.Config
	goos func() string
}

// NewChecker 创建平台检测器。
func NewChecker(cfg models.Config) *Checker {
	return &Checker{cfg: cfg, goos: currentOS}
}

// Validate 校验当前操作系统与数据目录权限。
func (c *Checker) Validate() error {
	if _, ok := supportedOS[c.goos()]; !ok {
		return fmt.Errorf("platform: unsupported operating system %s", c.goos())
	}
	if c.cfg.RootDir == "" {
		return fmt.Errorf("platform: data directory is not configured")
	}
	if err := os.MkdirAll(c.cfg.RootDir, 0o755); err != nil {
		return fmt.Errorf("platform: cannot access data directory %s: %w", c.cfg.RootDir, err)
	}
	return nil
}
