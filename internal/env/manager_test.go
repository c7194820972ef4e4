package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(home, shell string) *Manager {
	mgr := NewManager()
	mgr.homeFn = func() (string, error) { return home, nil }
	mgr.envFn = func(key string) string {
		if key == "SHELL" {
			return shell
		}
		return ""
	}
	return mgr
}

func TestConfigFileSelection(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(t.TempDir(), "")

	bashFile, err := mgr.configFileForShell("bash")
	if err != nil {
		t.Fatalf("configFileForShell bash err: %v", err)
	}
	if !strings.HasSuffix(bashFile, ".bashrc") && !strings.HasSuffix(bashFile, ".bash_profile") {
		t.Fatalf("bash config file invalid: %s", bashFile)
	}

	zshFile, err := mgr.configFileForShell("zsh")
	if err != nil {
		t.Fatalf("configFileForShell zsh err: %v", err)
	}
	if !strings.HasSuffix(zshFile, ".zshrc") {
		t.Fatalf("zsh config file invalid: %s", zshFile)
	}

	if _, err := mgr.configFileForShell("fish"); err == nil {
		t.Fatalf("expected error for fish")
	}
}

func TestUpdateShellConfigCreatesAndReplacesBlock(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	mgr := newTestManager(home, "/bin/bash")
	rc := filepath.Join(home, ".bashrc")
	if err := os.WriteFile(rc, []byte("export EDITOR=vim\n"), 0o644); err != nil {
		t.Fatalf("seed bashrc: %v", err)
	}

	if err := mgr.UpdateShellConfig("bash", "/opt/blender-4.1/blender", "4.1"); err != nil {
		t.Fatalf("UpdateShellConfig failed: %v", err)
	}
	if err := mgr.UpdateShellConfig("bash", "/opt/blender 4.2/blender", "4.2"); err != nil {
		t.Fatalf("UpdateShellConfig second run failed: %v", err)
	}

	data, err := os.ReadFile(rc)
	if err != nil {
		t.Fatalf("read bashrc: %v", err)
	}
	content := string(data)
	if strings.Count(content, blockStart) != 1 {
		t.Fatalf("expected single config block, got %d", strings.Count(content, blockStart))
	}
	if !strings.HasPrefix(content, "export EDITOR=vim\n") {
		t.Fatalf("existing content lost: %s", content)
	}
	if !strings.Contains(content, "export BLENDER_PATH='/opt/blender 4.2/blender'") {
		t.Fatalf("config not updated: %s", content)
	}
	if !strings.Contains(content, "export BLENDER_VERSION='4.2'") {
		t.Fatalf("version missing: %s", content)
	}
	if strings.Contains(content, "4.1") {
		t.Fatalf("stale block left behind: %s", content)
	}
}

func TestExportUsesDetectedShell(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	mgr := newTestManager(home, "/usr/bin/zsh")

	if err := mgr.Export("/opt/blender/blender", "4.2"); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(home, ".zshrc"))
	if err != nil {
		t.Fatalf("read zshrc: %v", err)
	}
	if !strings.Contains(string(data), "BLENDER_PATH='/opt/blender/blender'") {
		t.Fatalf("zshrc missing export: %s", data)
	}

	if err := newTestManager(home, "/usr/bin/fish").Export("/x", "1.0"); err == nil {
		t.Fatalf("expected unsupported shell error")
	}
}

func TestDetectShell(t *testing.T) {
	t.Parallel()

	shell, err := newTestManager("", "/bin/zsh").DetectShell()
	if err != nil {
		t.Fatalf("DetectShell error: %v", err)
	}
	if shell != "zsh" {
		t.Fatalf("expected zsh, got %s", shell)
	}

	shell, err = newTestManager("", "").DetectShell()
	if err != nil || shell != "bash" {
		t.Fatalf("expected bash default, got %q %v", shell, err)
	}
}

func TestShellQuote(t *testing.T) {
	t.Parallel()

	if got := shellQuote("it's"); got != `'it'\''s'` {
		t.Fatalf("unexpected quoting: %s", got)
	}
}
