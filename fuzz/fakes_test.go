package fuzz

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/busfuzz/busfuzz/artifact"
	"github.com/busfuzz/busfuzz/catalog"
	"github.com/busfuzz/busfuzz/dbusvalue"
	"github.com/busfuzz/busfuzz/healthcheck"
	"github.com/busfuzz/busfuzz/liveness"
)

// scriptedGenerator returns fixed values per type code and runs a fixed
// number of iterations.
type scriptedGenerator struct {
	values     map[byte]dbusvalue.Value
	err        error
	iterations int

	resets    []int
	iteration int
	maxLens   []int
}

func (g *scriptedGenerator) Reset(maxBufferSize int) {
	g.resets = append(g.resets, maxBufferSize)
	g.iteration = 0
}

func (g *scriptedGenerator) Next(code byte, maxLen int) (dbusvalue.Value, error) {
	g.maxLens = append(g.maxLens, maxLen)
	if g.err != nil {
		return nil, g.err
	}
	v, ok := g.values[code]
	if !ok {
		return nil, errors.Errorf("no scripted value for %q", code)
	}
	return v, nil
}

func (g *scriptedGenerator) Continue(bool, int) bool {
	g.iteration++
	return g.iteration <= g.iterations
}

// fakeProxy answers every call with reply, or err when set.
type fakeProxy struct {
	reply Response
	err   error
	// errAfter makes the first errAfter calls succeed before err is returned.
	errAfter int

	calls []dbusvalue.Tuple
}

func (p *fakeProxy) Call(_ context.Context, _ string, args dbusvalue.Tuple) (Response, error) {
	p.calls = append(p.calls, args)
	if p.err != nil && len(p.calls) > p.errAfter {
		return Response{}, p.err
	}
	return p.reply, nil
}

type fakeHealth struct {
	status int
	err    error
	runs   int
}

func (h *fakeHealth) Run(context.Context) (healthcheck.Result, error) {
	h.runs++
	return healthcheck.Result{Status: h.status}, h.err
}

type fakeLiveness struct {
	state liveness.State
	err   error
	pids  []int
}

func (l *fakeLiveness) Check(pid int) (liveness.State, error) {
	l.pids = append(l.pids, pid)
	return l.state, l.err
}

type memoryStore struct {
	crashes []*artifact.Crash
}

func (s *memoryStore) Save(c *artifact.Crash) (string, error) {
	s.crashes = append(s.crashes, c)
	return "/crashes/" + c.Method + ".cbor", nil
}

// transcript collects call records and log lines in the order they were
// produced.
type transcript struct {
	mu    sync.Mutex
	lines []string
}

func (t *transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (t *transcript) WriteRecord(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, "record: "+line)
	return nil
}

func (t *transcript) records() []string {
	var out []string
	for _, l := range t.lines {
		if strings.HasPrefix(l, "record: ") {
			out = append(out, strings.TrimPrefix(l, "record: "))
		}
	}
	return out
}

// index returns the position of the first line containing s, or -1.
func (t *transcript) index(s string) int {
	for i, l := range t.lines {
		if strings.Contains(l, s) {
			return i
		}
	}
	return -1
}

type countingObserver struct {
	outcomes []Outcome
}

func (o *countingObserver) ObserveCall(_ string, outcome Outcome, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func newMethod(name string, void bool, sigs ...string) *catalog.Method {
	m := catalog.NewMethod(name, void)
	for _, sig := range sigs {
		if err := m.AddArgument(sig); err != nil {
			panic(err)
		}
	}
	return m
}
