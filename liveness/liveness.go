// Package liveness decides whether the fuzzed process is still running.
package liveness

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

type State int

const (
	Alive State = iota
	Exited
	// Indeterminate is reported for a pid that cannot name a process.
	Indeterminate
)

func (s State) String() string {
	switch s {
	case Alive:
		return "alive"
	case Exited:
		return "exited"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

const coreDumpingField = "CoreDumping:"

// Probe reads the per-process status records of a procfs mount.
type Probe struct {
	fs         procfs.FS
	mountPoint string
}

// NewProbe opens the procfs mounted at mountPoint, /proc if empty.
func NewProbe(mountPoint string) (*Probe, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open procfs at %s", mountPoint)
	}
	return &Probe{fs: fs, mountPoint: mountPoint}, nil
}

// Check reports the state of pid. A process that is writing a core dump is
// already considered gone, as is one whose status cannot be read. Read
// failures other than a vanished process are returned along with Exited.
func (p *Probe) Check(pid int) (State, error) {
	if pid <= 0 {
		return Indeterminate, errors.Errorf("invalid pid %d", pid)
	}
	proc, err := p.fs.Proc(pid)
	if err != nil {
		if gone(err) {
			return Exited, nil
		}
		return Exited, errors.Wrapf(err, "cannot look up process %d", pid)
	}

	f, err := os.Open(filepath.Join(p.mountPoint, strconv.Itoa(pid), "status"))
	if err != nil {
		if gone(err) {
			return Exited, nil
		}
		return Exited, errors.Wrapf(err, "cannot open status of process %d", pid)
	}
	defer f.Close()

	dumping, err := coreDumping(f)
	if err != nil || dumping {
		return Exited, nil
	}

	// A zombie still has a status record but will never answer again.
	stat, err := proc.Stat()
	if err != nil {
		if gone(err) {
			return Exited, nil
		}
		return Alive, nil
	}
	if stat.State == "Z" || stat.State == "X" {
		return Exited, nil
	}
	return Alive, nil
}

// coreDumping scans a status record for an active CoreDumping field.
func coreDumping(f *os.File) (bool, error) {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, coreDumpingField) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, coreDumpingField)))
		if err != nil {
			continue
		}
		return n > 0, nil
	}
	return false, scanner.Err()
}

func gone(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.ESRCH)
}
