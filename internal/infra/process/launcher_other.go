//go:build !unix

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func configureProcessGroup(*exec.Cmd) {}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if sig == syscall.SIGKILL {
		return p.Kill()
	}
	return p.Signal(sig)
}
