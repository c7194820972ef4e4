package models

import "time"

// Config 保存 bvm 的全局配置，与用户主目录下的资源保持一致。
type Config struct {
	RootDir         string        // bvm 数据根目录，默认 ~/.bvm
	RegistryBackend string        // 登记表存储后端：sqlite 或 json
	RegistryPath    string        // 登记表文件路径
	SettingsPath    string        // 全局设置文件路径，默认 ~/.bvm/settings.toml
	VerifyTimeout   time.Duration // 校验子进程的超时时间，默认 3 秒
	VerifyArgs      []string      // 校验时传给 Blender 的参数
	MaxOutput       int           // 校验时最多读取的输出字节数
	ExecutableNames []string      // 允许登记的可执行文件名
	ShellExport     bool          // 激活后是否写入 shell 配置
}

const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// DefaultVerifyTimeout 是校验子进程的默认超时时间。
const DefaultVerifyTimeout = 3 * time.Second

// DefaultVerifyArgs 让 Blender 以批处理、出厂设置方式启动。
var DefaultVerifyArgs = []string{"-b", "--factory-startup"}

// DefaultExecutableNames 是默认允许登记的可执行文件名。
var DefaultExecutableNames = []string{"blender", "blender.exe", "Blender"}
