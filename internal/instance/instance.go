// Package instance tracks running routineo processes through per-process
// lockfiles so doctor can warn about concurrent sessions.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/logger"
)

const lockDir = "run"

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid
	nowFunc         = time.Now
)

// Instance is another live routineo process.
type Instance struct {
	PID       int
	Command   string
	StartedAt time.Time
}

func lockPath(dir string, pid int) string {
	return filepath.Join(dir, lockDir, strconv.Itoa(pid)+".lock")
}

// Register writes this process's lockfile under dir. The returned release
// func removes it.
func Register(dir, command string) (func(), error) {
	pid := getpidFunc()
	path := lockPath(dir, pid)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	content := fmt.Sprintf("%d|%s|%s", pid, nowFunc().UTC().Format(constants.InstanceFormat), command)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("writing lockfile: %w", err)
	}
	return func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove lockfile", "path", path, "error", err)
		}
	}, nil
}

// Others returns the live routineo processes registered under dir, other
// than this one. Lockfiles of dead processes are removed.
func Others(dir string) ([]Instance, error) {
	entries, err := os.ReadDir(filepath.Join(dir, lockDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lock directory: %w", err)
	}

	self := getpidFunc()
	var out []Instance
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		path := filepath.Join(dir, lockDir, e.Name())
		inst, err := validateLockfile(path)
		if err != nil {
			logger.Debug("Removing stale lockfile", "path", path, "reason", err)
			os.Remove(path)
			continue
		}
		if inst.PID != self {
			out = append(out, inst)
		}
	}
	return out, nil
}

func validateLockfile(path string) (Instance, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Instance{}, err
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return Instance{}, errors.New("lockfile is malformed")
	}

	pid, err := strconv.Atoi(parts[0])
	if err != nil || pid <= 0 {
		return Instance{}, errors.New("invalid process ID in lockfile")
	}
	started, err := time.Parse(constants.InstanceFormat, parts[1])
	if err != nil {
		return Instance{}, errors.New("invalid start time in lockfile")
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return Instance{}, fmt.Errorf("process %d not running", pid)
	}
	if !strings.HasPrefix(process.Executable(), constants.AppName) {
		return Instance{}, fmt.Errorf("process with PID %d is not %s (is %s)", pid, constants.AppName, process.Executable())
	}

	return Instance{PID: pid, Command: parts[2], StartedAt: started}, nil
}
