// Package env 把当前激活的 Blender 写入用户 shell 配置，供终端直接使用。
package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	blockStart = "# >>> bvm initialize >>>"
	blockEnd   = "# <<< bvm initialize <<<"
)

// Exporter 接收激活成功后发布的 Blender 路径与主次版本号。
type Exporter interface {
	Export(path, version string) error
}

// EnvManager 暴露 shell 配置能力。
type EnvManager interface {
	Exporter
	DetectShell() (string, error)
	UpdateShellConfig(shellType, blenderPath, version string) error
}

// Manager 实现 EnvManager。
type Manager struct {
	homeFn func() (string, error)
	envFn  func(string) string
}

// NewManager 构造 shell 配置服务。
func NewManager() *Manager {
	return &Manager{
		homeFn: os.UserHomeDir,
		envFn:  os.Getenv,
	}
}

// Export 检测当前 shell 并写入 BLENDER_PATH 与 BLENDER_VERSION。
func (m *Manager) Export(blenderPath, version string) error {
	shell, err := m.DetectShell()
	if err != nil {
		return err
	}
	return m.UpdateShellConfig(shell, blenderPath, version)
}

// DetectShell 根据 SHELL 环境变量推断当前 shell。
func (m *Manager) DetectShell() (string, error) {
	shellPath := m.envFn("SHELL")
	if shellPath == "" {
		shellPath = "bash"
	}
	shell := filepath.Base(shellPath)
	switch shell {
	case "bash", "zsh":
		return shell, nil
	default:
		return "", fmt.Errorf("env: unsupported shell %q", shell)
	}
}

// UpdateShellConfig 对指定 shell 写入配置块，已有的配置块会被替换。
func (m *Manager) UpdateShellConfig(shellType, blenderPath, version string) error {
	if blenderPath == "" {
		return errors.New("env: blender path is required")
	}

	configPath, err := m.configFileForShell(shellType)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("env: ensure config dir: %w", err)
	}

	var existing []byte
	if data, err := os.ReadFile(configPath); err == nil {
		existing = data
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("env: read config: %w", err)
	}

	block := buildConfigBlock(blenderPath, version)
	merged := mergeConfig(string(existing), block)

	return os.WriteFile(configPath, []byte(merged), 0o644)
}

func (m *Manager) configFileForShell(shellType string) (string, error) {
	home, err := m.homeFn()
	if err != nil {
		return "", fmt.Errorf("env: home dir: %w", err)
	}

	switch shellType {
	case "bash":
		path := filepath.Join(home, ".bashrc")
		if fileExists(path) {
			return path, nil
		}
		return filepath.Join(home, ".bash_profile"), nil
	case "zsh":
		return filepath.Join(home, ".zshrc"), nil
	default:
		return "", fmt.Errorf("env: unsupported shell %q", shellType)
	}
}

func buildConfigBlock(blenderPath, version string) string {
	lines := []string{
		blockStart,
		fmt.Sprintf("export BLENDER_PATH=%s", shellQuote(blenderPath)),
		fmt.Sprintf("export BLENDER_VERSION=%s", shellQuote(version)),
		`alias blender="$BLENDER_PATH"`,
		blockEnd,
	}
	return strings.Join(lines, "\n")
}

// shellQuote 用单引号包裹值，使路径中的空格与 $ 不被 shell 展开。
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func mergeConfig(existing, block string) string {
	cleaned := removeExistingBlock(existing)
	cleaned = strings.TrimRight(cleaned, "\n")
	if strings.TrimSpace(cleaned) == "" {
		return block + "\n"
	}
	return cleaned + "\n\n" + block + "\n"
}

func removeExistingBlock(content string) string {
	var builder strings.Builder
	skipping := false
	for _, line := range strings.Split(content, "\n") {
		switch strings.TrimSpace(line) {
		case blockStart:
			skipping = true
			continue
		case blockEnd:
			skipping = false
			continue
		}
		if skipping || (line == "" && builder.Len() == 0) {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		builder.WriteString(line)
	}
	return strings.Trim(builder.String(), "\n")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
