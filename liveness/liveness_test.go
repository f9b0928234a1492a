package liveness

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusTemplate = `Name:	target
Umask:	0022
State:	S (sleeping)
Tgid:	4242
Pid:	4242
PPid:	1
`

func statLine(pid int, state string) string {
	return strconv.Itoa(pid) + " (target) " + state +
		" 1 4242 4242 0 -1 4194560 1791 0 0 0 3 1 0 0 20 0 1 0 3096 12345678 500" +
		" 4294967295 94000000000000 94000000100000 140700000000000 0 0 0 0 4096 16386" +
		" 0 0 0 17 3 0 0 0 0 0 94000000200000 94000000300000 94000000400000 140700000001000" +
		" 140700000002000 140700000002000 140700000003000 0\n"
}

func writeProc(t *testing.T, root string, pid int, status, stat string) {
	dir := filepath.Join(root, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if status != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0o644))
	}
	if stat != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))
	}
}

func newProbe(t *testing.T) (*Probe, string) {
	root := t.TempDir()
	p, err := NewProbe(root)
	require.NoError(t, err)
	return p, root
}

func TestCoreDumpingIsExited(t *testing.T) {
	p, root := newProbe(t)
	writeProc(t, root, 4242, "Name:\ttarget\nState:\tD (disk sleep)\nCoreDumping:\t1\nThreads:\t1\n", statLine(4242, "D"))

	state, err := p.Check(4242)
	require.NoError(t, err)
	assert.Equal(t, Exited, state)
}

func TestMissingProcessIsExited(t *testing.T) {
	p, _ := newProbe(t)

	state, err := p.Check(4242)
	require.NoError(t, err)
	assert.Equal(t, Exited, state)
}

func TestMissingStatusIsExited(t *testing.T) {
	p, root := newProbe(t)
	writeProc(t, root, 4242, "", "")

	state, err := p.Check(4242)
	require.NoError(t, err)
	assert.Equal(t, Exited, state)
}

func TestNotDumpingIsAlive(t *testing.T) {
	p, root := newProbe(t)
	writeProc(t, root, 4242, "Name:\ttarget\nState:\tS (sleeping)\nCoreDumping:\t0\nThreads:\t1\n", statLine(4242, "S"))

	state, err := p.Check(4242)
	require.NoError(t, err)
	assert.Equal(t, Alive, state)
}

func TestFieldAbsentIsAlive(t *testing.T) {
	p, root := newProbe(t)
	writeProc(t, root, 4242, statusTemplate, statLine(4242, "S"))

	state, err := p.Check(4242)
	require.NoError(t, err)
	assert.Equal(t, Alive, state)
}

func TestZombieIsExited(t *testing.T) {
	p, root := newProbe(t)
	writeProc(t, root, 4242, "Name:\ttarget\nState:\tZ (zombie)\n", statLine(4242, "Z"))

	state, err := p.Check(4242)
	require.NoError(t, err)
	assert.Equal(t, Exited, state)
}

func TestInvalidPid(t *testing.T) {
	p, _ := newProbe(t)

	state, err := p.Check(0)
	assert.Error(t, err)
	assert.Equal(t, Indeterminate, state)
}

func TestSelfIsAlive(t *testing.T) {
	if _, err := os.Stat("/proc/self/status"); err != nil {
		t.Skip("no procfs mounted")
	}
	p, err := NewProbe("")
	require.NoError(t, err)

	state, err := p.Check(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, Alive, state)
}

func TestNewProbeMissingMount(t *testing.T) {
	_, err := NewProbe(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
