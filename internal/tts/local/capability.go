package local

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// acceleratorDevices are device nodes exposed by GPU drivers (NVIDIA, WSL2
// GPU paravirtualization, AMD ROCm).
var acceleratorDevices = []string{"/dev/nvidia0", "/dev/dxg", "/dev/kfd"}

// env abstracts the process environment for tests.
type env struct {
	getenv   func(string) string
	stat     func(string) (os.FileInfo, error)
	lookPath func(string) (string, error)
	goos     string
	goarch   string
}

var hostEnv = env{
	getenv:   os.Getenv,
	stat:     os.Stat,
	lookPath: exec.LookPath,
	goos:     runtime.GOOS,
	goarch:   runtime.GOARCH,
}

// AcceleratorCheck reports whether a hardware accelerator is visible to this
// process. It never loads a model.
func AcceleratorCheck() error { return hostEnv.accelerator() }

func (e env) accelerator() error {
	if v := strings.TrimSpace(e.getenv("CUDA_VISIBLE_DEVICES")); v == "-1" || v == "none" {
		return errors.New("accelerators hidden by CUDA_VISIBLE_DEVICES")
	}
	if e.goos == "darwin" && e.goarch == "arm64" {
		return nil
	}
	for _, dev := range acceleratorDevices {
		if _, err := e.stat(dev); err == nil {
			return nil
		}
	}
	if _, err := e.lookPath("nvidia-smi"); err == nil {
		return nil
	}
	return errors.New("no accelerator device found")
}
