// Package instance keeps a second copy of the worker from starting on the
// same host.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var ErrAlreadyRunning = errors.New("another instance is already running")

type Guard struct {
	path string
	pid  int
}

// Acquire writes the current pid to path. It fails with ErrAlreadyRunning
// when path names a live process; a stale file is replaced.
func Acquire(path string) (*Guard, error) {
	return acquire(path, os.Getpid(), processAlive)
}

// staleRetries bounds how often a stale file is removed before giving up.
const staleRetries = 3

func acquire(path string, pid int, alive func(int) bool) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating pid file dir: %w", err)
	}

	for range staleRetries {
		err := create(path, pid)
		if err == nil {
			return &Guard{path: path, pid: pid}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		raw, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading pid file: %w", err)
		}
		other, perr := strconv.Atoi(strings.TrimSpace(string(raw)))
		if perr == nil && other != pid && alive(other) {
			return nil, fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, other, path)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale pid file: %w", err)
		}
	}
	return nil, fmt.Errorf("%w (%s keeps reappearing)", ErrAlreadyRunning, path)
}

// create publishes the pid file only if path does not exist. The pid is
// written to a private file first and hard-linked into place, so readers
// never see a partially written file.
func create(path string, pid int) error {
	tmp := fmt.Sprintf("%s.%d.tmp", path, pid)
	_ = os.Remove(tmp)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating pid file: %v", err)
	}
	defer os.Remove(tmp)

	_, werr := f.WriteString(strconv.Itoa(pid) + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("writing pid file: %w", werr)
	}

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		return fmt.Errorf("publishing pid file: %w", err)
	}
	return nil
}

// Release removes the pid file if it still belongs to this process.
func (g *Guard) Release() error {
	raw, err := os.ReadFile(g.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(raw)) != strconv.Itoa(g.pid) {
		return nil
	}
	return os.Remove(g.path)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
