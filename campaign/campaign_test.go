package campaign

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busfuzz/busfuzz/artifact"
	"github.com/busfuzz/busfuzz/bus"
	"github.com/busfuzz/busfuzz/catalog"
	"github.com/busfuzz/busfuzz/config"
	"github.com/busfuzz/busfuzz/dbusvalue"
	"github.com/busfuzz/busfuzz/fuzz"
	"github.com/busfuzz/busfuzz/generator"
	"github.com/busfuzz/busfuzz/liveness"
	"github.com/busfuzz/busfuzz/metrics"
)

const (
	testBusName = "org.example.Service"
	testIface   = "org.example.Service"
)

// fixedGenerator produces one constant value per type code for a fixed
// number of iterations.
type fixedGenerator struct {
	iterations int
	iteration  int
}

func (g *fixedGenerator) Reset(int) { g.iteration = 0 }

func (g *fixedGenerator) Next(code byte, _ int) (dbusvalue.Value, error) {
	switch code {
	case 's':
		return dbusvalue.String("text"), nil
	case 'u':
		return dbusvalue.Uint32(7), nil
	case 'i':
		return dbusvalue.Int32(-7), nil
	}
	return nil, errors.Errorf("no value for %q", code)
}

func (g *fixedGenerator) Continue(bool, int) bool {
	g.iteration++
	return g.iteration <= g.iterations
}

type call struct {
	path, iface, method string
	args                dbusvalue.Tuple
}

type fakeBus struct {
	objects []bus.Object
	// errors answers calls of a method with a remote error.
	errors map[string]error
	pid    int
	pidErr error

	walked   []string
	selected []string
	calls    []call
}

func (b *fakeBus) Objects(_ context.Context, root string, _ bus.Filter) ([]bus.Object, error) {
	b.walked = append(b.walked, root)
	return b.objects, nil
}

func (b *fakeBus) Object(_ context.Context, path string, _ bus.Filter) (bus.Object, error) {
	b.selected = append(b.selected, path)
	for _, obj := range b.objects {
		if obj.Path == path {
			return obj, nil
		}
	}
	return bus.Object{}, errors.Errorf("no object %s", path)
}

func (b *fakeBus) Proxy(path, iface string) fuzz.Proxy {
	return &fakeProxy{bus: b, path: path, iface: iface}
}

func (b *fakeBus) PID(context.Context) (int, error) {
	return b.pid, b.pidErr
}

type fakeProxy struct {
	bus         *fakeBus
	path, iface string
}

func (p *fakeProxy) Call(_ context.Context, method string, args dbusvalue.Tuple) (fuzz.Response, error) {
	p.bus.calls = append(p.bus.calls, call{path: p.path, iface: p.iface, method: method, args: args})
	if err := p.bus.errors[method]; err != nil {
		return fuzz.Response{}, err
	}
	return fuzz.Response{Signature: fuzz.EmptyResponse}, nil
}

func (b *fakeBus) calledMethods() []string {
	var names []string
	for _, c := range b.calls {
		if len(names) == 0 || names[len(names)-1] != c.method {
			names = append(names, c.method)
		}
	}
	return names
}

type fakeLiveness struct {
	states map[int]liveness.State
}

func (l *fakeLiveness) Check(pid int) (liveness.State, error) {
	if s, ok := l.states[pid]; ok {
		return s, nil
	}
	return liveness.Alive, nil
}

func method(name string, in ...string) bus.MethodInfo {
	return bus.MethodInfo{Interface: testIface, Name: name, In: in, Void: true}
}

func newTestBus() *fakeBus {
	return &fakeBus{
		pid: 42,
		objects: []bus.Object{
			{Path: "/org/example", Interfaces: []bus.InterfaceInfo{{
				Name: testIface,
				Methods: []bus.MethodInfo{
					method("Ping"),
					method("SetName", "s", "u"),
					method("Reboot"),
					method("Update", "a{sv}"),
				},
			}}},
			{Path: "/org/example/child", Interfaces: []bus.InterfaceInfo{{
				Name:    testIface,
				Methods: []bus.MethodInfo{method("Add", "i", "i")},
			}}},
		},
	}
}

func newTestCampaign(cfg Config, b *fakeBus) *Campaign {
	cfg.BusName = testBusName
	return New(cfg, b, func() generator.Generator { return &fixedGenerator{iterations: 3} }, nil)
}

func testSuppressions(t *testing.T) *config.Suppressions {
	s, err := config.ParseSuppressions(strings.NewReader(`
suppressions:
  org.example.Service:
    - method: Reboot
      reason: destructive
`))
	require.NoError(t, err)
	return s
}

func TestRunWalksTree(t *testing.T) {
	b := newTestBus()
	c := newTestCampaign(Config{}, b)
	c.Suppressions = testSuppressions(t)
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	c.Metrics = collector

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{RootObject}, b.walked)
	assert.Empty(t, b.selected)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Results, 5)
	assert.Equal(t, fuzz.CodeSuccess, report.Code())
	assert.Equal(t, 0, report.ExitStatus())

	passed, skipped, failed := report.Counts()
	assert.Equal(t, 3, passed)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 0, failed)

	assert.Equal(t, "destructive", report.Results[2].Verdict.SkipReason)
	assert.Equal(t, fuzz.UnsupportedSignatureSkipped, report.Results[3].Verdict.Outcome)
	assert.Equal(t, "/org/example/child", report.Results[4].Object)

	assert.Equal(t, []string{"Ping", "SetName", "Add"}, b.calledMethods())
	assert.Len(t, b.calls, 9)
	assert.Equal(t, "(su)", b.calls[3].args.Signature())

	expected := `
# HELP busfuzz_method_verdicts_total Number of tested methods by verdict
# TYPE busfuzz_method_verdicts_total counter
busfuzz_method_verdicts_total{verdict="Skipped"} 1
busfuzz_method_verdicts_total{verdict="Success"} 3
busfuzz_method_verdicts_total{verdict="UnsupportedSignatureSkipped"} 1
# HELP busfuzz_calls_total Number of fuzzed method calls by classified outcome
# TYPE busfuzz_calls_total counter
busfuzz_calls_total{outcome="Success"} 9
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"busfuzz_method_verdicts_total", "busfuzz_calls_total"))
}

func TestRunSingleObject(t *testing.T) {
	b := newTestBus()
	c := newTestCampaign(Config{Object: "/org/example/child"}, b)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, b.walked)
	assert.Equal(t, []string{"/org/example/child"}, b.selected)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "Add", report.Results[0].Verdict.Method)
}

func TestRunStopsOnFailure(t *testing.T) {
	b := newTestBus()
	b.errors = map[string]error{"SetName": &fuzz.RemoteError{Name: fuzz.ErrorNoReply}}
	c := newTestCampaign(Config{}, b)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	res, ok := report.Failed()
	require.True(t, ok)
	assert.Equal(t, "SetName", res.Verdict.Method)
	assert.Equal(t, fuzz.CodeCrash, report.Code())
	assert.Equal(t, "busfuzz -v -n org.example.Service -o /org/example -i org.example.Service -t SetName", res.Verdict.Reproducer)
}

func TestReproducerNamesSessionBus(t *testing.T) {
	b := newTestBus()
	b.errors = map[string]error{"SetName": &fuzz.RemoteError{Name: fuzz.ErrorNoReply}}
	c := newTestCampaign(Config{Bus: "session"}, b)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	res, ok := report.Failed()
	require.True(t, ok)
	assert.Equal(t, "busfuzz -v --bus session -n org.example.Service -o /org/example -i org.example.Service -t SetName", res.Verdict.Reproducer)
}

func TestRunKeepGoing(t *testing.T) {
	b := newTestBus()
	b.errors = map[string]error{"Ping": &fuzz.RemoteError{Name: fuzz.ErrorNoReply}}
	c := newTestCampaign(Config{KeepGoing: true}, b)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 5)
	_, _, failed := report.Counts()
	assert.Equal(t, 1, failed)
	assert.Equal(t, fuzz.CodeCrash, report.Code())
}

func TestRunStopsWhenProcessIsGone(t *testing.T) {
	b := newTestBus()
	c := newTestCampaign(Config{KeepGoing: true}, b)
	c.Liveness = &fakeLiveness{states: map[int]liveness.State{42: liveness.Exited}}

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, fuzz.TargetCrashed, report.Results[0].Verdict.Outcome)
	assert.Len(t, b.calls, 1)
}

func TestRunInternalErrorExitStatus(t *testing.T) {
	b := newTestBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestCampaign(Config{}, b)

	report, err := c.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, fuzz.CodeInternalError, report.Code())
	assert.Equal(t, 255, report.ExitStatus())
	assert.Empty(t, b.calls)
}

func TestRunInvalidIntrospectedSignature(t *testing.T) {
	b := &fakeBus{objects: []bus.Object{{Path: "/", Interfaces: []bus.InterfaceInfo{{
		Name:    testIface,
		Methods: []bus.MethodInfo{method("Broken", "")},
	}}}}}
	report, err := newTestCampaign(Config{}, b).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, fuzz.InternalErrorOutcome, report.Results[0].Verdict.Outcome)
}

func TestRunNothingToTest(t *testing.T) {
	_, err := newTestCampaign(Config{}, &fakeBus{}).Run(context.Background())
	assert.True(t, errors.Is(err, ErrNothingToTest))
}

func TestRunPIDFailure(t *testing.T) {
	b := newTestBus()
	b.pidErr = errors.New("name has no owner")
	c := newTestCampaign(Config{}, b)
	c.Liveness = &fakeLiveness{}

	_, err := c.Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, b.calls)
}

func TestList(t *testing.T) {
	b := newTestBus()
	c := newTestCampaign(Config{}, b)
	c.Suppressions = testSuppressions(t)

	entries, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, Entry{Object: "/org/example", Interface: testIface, Method: "SetName", Signature: "(su)", Void: true, Fuzzed: true}, entries[1])
	assert.False(t, entries[2].Fuzzed)
	assert.Equal(t, "suppressed: destructive", entries[2].Reason)
	assert.False(t, entries[3].Fuzzed)
	assert.Equal(t, "unsupported signature a{sv}", entries[3].Reason)
	assert.Empty(t, b.calls)
}

func TestReplay(t *testing.T) {
	m := catalog.NewMethod("SetName", true)
	require.NoError(t, m.AddArgument("s"))
	require.NoError(t, m.AddArgument("u"))
	m.Slot(0).Value = dbusvalue.String("boom")
	m.Slot(1).Value = dbusvalue.Uint32(99)
	crash, err := artifact.NewCrash(m)
	require.NoError(t, err)
	m.Release()
	crash.BusName = testBusName
	crash.Object = "/org/example"
	crash.Interface = testIface

	b := newTestBus()
	v, err := newTestCampaign(Config{}, b).Replay(context.Background(), crash)
	require.NoError(t, err)
	assert.Equal(t, fuzz.Success, v.Outcome)
	require.Len(t, b.calls, 1)
	assert.Equal(t, "/org/example", b.calls[0].path)
	assert.Equal(t, "SetName", b.calls[0].method)
	assert.Equal(t, "(su)", b.calls[0].args.Signature())
	assert.Equal(t, dbusvalue.String("boom"), b.calls[0].args.At(0))
}

func TestReplayFailure(t *testing.T) {
	m := catalog.NewMethod("Ping", true)
	crash, err := artifact.NewCrash(m)
	require.NoError(t, err)
	m.Release()
	crash.BusName = testBusName
	crash.Object = "/org/example"
	crash.Interface = testIface

	b := newTestBus()
	b.errors = map[string]error{"Ping": &fuzz.RemoteError{Name: fuzz.ErrorNoReply}}
	v, err := newTestCampaign(Config{}, b).Replay(context.Background(), crash)
	require.NoError(t, err)
	assert.Equal(t, fuzz.RemoteNoReplyOrTimeout, v.Outcome)
	assert.Equal(t, fuzz.CodeCrash, v.Code())
}
