//go:build windows

package verify

import (
	"errors"
	"os"
	"os/exec"
)

// configureProcess 在 Windows 上只能终止直接子进程，子进程再派生的进程不受控制。
func configureProcess(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
