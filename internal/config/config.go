// Package config 负责读取 bvm 的 YAML 配置文件并补全默认值。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liangyou/bvm/pkg/models"
)

// File 对应 config.yaml 的结构。
type File struct {
	RootDir  string         `yaml:"root_dir"`
	Registry RegistryConfig `yaml:"registry"`
	Verify   VerifyConfig   `yaml:"verify"`
	Settings SettingsConfig `yaml:"settings"`
	Shell    ShellConfig    `yaml:"shell"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RegistryConfig 指定登记表的存储后端。
type RegistryConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// VerifyConfig 控制校验子进程。
type VerifyConfig struct {
	Timeout         time.Duration `yaml:"-"`
	TimeoutRaw      string        `yaml:"timeout"`
	Args            []string      `yaml:"args"`
	MaxOutput       int           `yaml:"max_output"`
	ExecutableNames []string      `yaml:"executable_names"`
}

// SettingsConfig 指定全局设置文件。
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// ShellConfig 控制是否把激活结果写入 shell 配置。
type ShellConfig struct {
	Export bool `yaml:"export"`
}

// LoggingConfig 控制日志级别与格式。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load 读取 path 处的配置，展开 ${VAR} 环境变量并校验。
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &f); err != nil {
		return nil, fmt.Errorf("config: parsing config file: %w", err)
	}

	if f.Verify.TimeoutRaw != "" {
		f.Verify.Timeout, err = time.ParseDuration(f.Verify.TimeoutRaw)
		if err != nil {
			return nil, fmt.Errorf("config: parsing verify.timeout %q: %w", f.Verify.TimeoutRaw, err)
		}
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("config: validating config: %w", err)
	}
	return &f, nil
}

// LoadOptional 在文件不存在时返回空配置。
func LoadOptional(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &File{}, nil
	}
	return Load(path)
}

// Validate 校验字段取值。
func (f *File) Validate() error {
	switch f.Registry.Backend {
	case "", models.BackendSQLite, models.BackendJSON:
	default:
		return fmt.Errorf("registry.backend must be %q or %q, got %q", models.BackendSQLite, models.BackendJSON, f.Registry.Backend)
	}
	if f.Verify.Timeout < 0 {
		return fmt.Errorf("verify.timeout must not be negative")
	}
	if f.Verify.MaxOutput < 0 {
		return fmt.Errorf("verify.max_output must not be negative")
	}
	switch f.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", f.Logging.Format)
	}
	return nil
}

// Models 把文件配置转换为运行时配置并补全默认值。
func (f *File) Models() models.Config {
	return Resolve(models.Config{
		RootDir:         expandHome(f.RootDir),
		RegistryBackend: f.Registry.Backend,
		RegistryPath:    expandHome(f.Registry.Path),
		SettingsPath:    expandHome(f.Settings.Path),
		VerifyTimeout:   f.Verify.Timeout,
		VerifyArgs:      f.Verify.Args,
		MaxOutput:       f.Verify.MaxOutput,
		ExecutableNames: f.Verify.ExecutableNames,
		ShellExport:     f.Shell.Export,
	})
}

// Resolve 为未设置的字段填充默认值。
func Resolve(cfg models.Config) models.Config {
	if cfg.RootDir == "" {
		cfg.RootDir = DefaultRoot()
	}
	if cfg.RegistryBackend == "" {
		cfg.RegistryBackend = models.BackendSQLite
	}
	if cfg.RegistryPath == "" {
		name := "bvm.db"
		if cfg.RegistryBackend == models.BackendJSON {
			name = "installations.json"
		}
		cfg.RegistryPath = filepath.Join(cfg.RootDir, name)
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = filepath.Join(cfg.RootDir, "settings.toml")
	}
	if cfg.VerifyTimeout == 0 {
		cfg.VerifyTimeout = models.DefaultVerifyTimeout
	}
	if len(cfg.VerifyArgs) == 0 {
		cfg.VerifyArgs = append([]string(nil), models.DefaultVerifyArgs...)
	}
	if cfg.MaxOutput == 0 {
		cfg.MaxOutput = 1 << 20
	}
	if len(cfg.ExecutableNames) == 0 {
		cfg.ExecutableNames = append([]string(nil), models.DefaultExecutableNames...)
	}
	return cfg
}

// DefaultRoot 返回默认数据根目录 ~/.bvm。
func DefaultRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".bvm")
	}
	return filepath.Join(os.TempDir(), "bvm")
}

// DefaultPath 返回配置文件路径：BVM_CONFIG 优先，否则为数据根目录下的 config.yaml。
func DefaultPath(getenv func(string) string) string {
	if p := getenv("BVM_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultRoot(), "config.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars 把 ${VAR} 替换为环境变量的值，未设置时替换为空串。
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
