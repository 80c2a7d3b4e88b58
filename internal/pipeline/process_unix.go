//go:build !windows

package pipeline

import (
	"os"
	"syscall"
)

func suspend(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(syscall.SIGSTOP)
}

func resume(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(syscall.SIGCONT)
}
