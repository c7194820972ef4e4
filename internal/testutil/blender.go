// Package testutil 提供测试用的假 Blender 可执行文件。
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Banner 生成一行 Blender 版本横幅。
func Banner(version, hash string) string {
	return fmt.Sprintf("Blender %s (hash %s built 2024-07-16 06:29:21)", version, hash)
}

// Script 在 dir 下写入名为 blender 的 shell 脚本并返回其路径。
func Script(t testing.TB, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake blender scripts require a POSIX shell")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, "blender")
	content := "#!/bin/sh\n" + strings.TrimSpace(body) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write fake blender: %v", err)
	}
	return path
}

// FakeBlender 写入一个输出若干行后正常退出的假 Blender。
func FakeBlender(t testing.TB, dir string, lines ...string) string {
	t.Helper()
	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "printf '%%s\\n' '%s'\n", strings.ReplaceAll(line, "'", `'\''`))
	}
	b.WriteString("exit 0\n")
	return Script(t, dir, b.String())
}

// ValidBlender 写入一个打印指定版本横幅的假 Blender。
func ValidBlender(t testing.TB, dir, version, hash string) string {
	t.Helper()
	return FakeBlender(t, dir,
		"Color management: using fallback mode for management",
		Banner(version, hash),
		"Blender quit",
	)
}

// HangingBlender 写入一个永不退出、也不打印横幅的假 Blender。
func HangingBlender(t testing.TB, dir string) string {
	t.Helper()
	return Script(t, dir, "exec sleep 60")
}
