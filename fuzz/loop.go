package fuzz

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/busfuzz/busfuzz/artifact"
	"github.com/busfuzz/busfuzz/calllog"
	"github.com/busfuzz/busfuzz/catalog"
	"github.com/busfuzz/busfuzz/generator"
	"github.com/busfuzz/busfuzz/healthcheck"
	"github.com/busfuzz/busfuzz/liveness"
)

const (
	// MinBufferSize is the smallest accepted string buffer size.
	MinBufferSize = 512
	// DefaultBufferSize replaces a buffer size that is unset or too small.
	DefaultBufferSize = 50000
)

// EffectiveBufferSize applies the buffer size policy to the user's value.
func EffectiveBufferSize(n int) int {
	if n < MinBufferSize {
		return DefaultBufferSize
	}
	return n
}

// State is a step of the per-method test.
type State int

const (
	StateInit State = iota
	StateGenerating
	StateSkip
	StateComposing
	StateInvoking
	StateHealthChecking
	StateLivenessChecking
	StateLogging
	StateContinueDecision
	StateDone
)

var stateNames = [...]string{
	StateInit:             "init",
	StateGenerating:       "generating",
	StateSkip:             "skip",
	StateComposing:        "composing",
	StateInvoking:         "invoking",
	StateHealthChecking:   "health-checking",
	StateLivenessChecking: "liveness-checking",
	StateLogging:          "logging",
	StateContinueDecision: "continue-decision",
	StateDone:             "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// HealthChecker runs the post-call health check.
type HealthChecker interface {
	Run(ctx context.Context) (healthcheck.Result, error)
}

// LivenessChecker reports whether the tested process still runs.
type LivenessChecker interface {
	Check(pid int) (liveness.State, error)
}

// CrashStore keeps the input of failing methods.
type CrashStore interface {
	Save(c *artifact.Crash) (string, error)
}

// Observer is notified about every sent call.
type Observer interface {
	ObserveCall(method string, outcome Outcome, d time.Duration)
}

// Target identifies the object under test.
type Target struct {
	// Bus is the kind of bus, BusAddress its explicit address; both only
	// shape reproducers.
	Bus        string
	BusAddress string
	BusName    string
	Object     string
	Interface  string
	// PID of the process owning BusName.
	PID int
}

type Config struct {
	Target
	// BufferSize as given by the user; zero when unset.
	BufferSize int
	// Command is the optional health check command line.
	Command       string
	MaxExceptions int
	// Binary is the program name used in reproducers.
	Binary string
}

// Loop tests methods of one interface, one at a time.
type Loop struct {
	cfg        Config
	generator  generator.Generator
	composer   Composer
	controller *Controller
	session    *Session
	log        *zerolog.Logger

	// Health and Liveness are skipped when nil.
	Health   HealthChecker
	Liveness LivenessChecker
	// Sink receives one record per successful call and one for the failing
	// input, when set.
	Sink     calllog.Sink
	Crashes  CrashStore
	Observer Observer
}

func NewLoop(cfg Config, gen generator.Generator, controller *Controller, log *zerolog.Logger) *Loop {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Loop{
		cfg:        cfg,
		generator:  gen,
		controller: controller,
		session:    NewSession(cfg.MaxExceptions),
		log:        log,
	}
}

// Session exposes the state of the method currently under test.
func (l *Loop) Session() *Session {
	return l.session
}

// Test fuzzes m until the generator stops, the exception cap is reached or
// the method fails. m is released before Test returns.
func (l *Loop) Test(ctx context.Context, m *catalog.Method) Verdict {
	defer m.Release()

	l.trace(m, StateInit)
	bufferSize := EffectiveBufferSize(l.cfg.BufferSize)
	l.generator.Reset(bufferSize)
	l.session.Reset()
	engine := Engine{Generator: l.generator, MaxLength: bufferSize}
	l.log.Debug().Str("method", m.String()).Bool("void", m.Void).Int("bufferSize", bufferSize).Msg("testing method")

	v := Verdict{Method: m.Name}
	for l.generator.Continue(m.VariableLength, m.ArgCount()) {
		if err := ctx.Err(); err != nil {
			return l.internal(m, v, err)
		}

		l.trace(m, StateGenerating)
		ok, err := engine.Generate(l.session, m)
		if err != nil {
			return l.internal(m, v, err)
		}
		if !ok {
			l.trace(m, StateSkip)
			sig, _ := l.session.TakeUnsupported()
			v.Outcome = UnsupportedSignatureSkipped
			v.SkipReason = "unsupported signature " + sig
			l.log.Info().Str("method", m.Name).Str("signature", sig).Str("verdict", "SKIP").Msg("advanced signatures are not fuzzed")
			return l.done(m, v)
		}

		var stop bool
		v, stop = l.iterate(ctx, m, v)
		if stop {
			return v
		}

		l.trace(m, StateContinueDecision)
		if l.session.ExceptionCapReached() {
			l.log.Debug().Str("method", m.Name).Int("exceptions", l.session.Exceptions()).Msg("exception limit reached")
			l.session.ResetExceptions()
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return l.internal(m, v, err)
	}

	v.Outcome = Success
	l.log.Info().Str("method", m.Name).Int("iterations", v.Iterations).Str("verdict", "PASS").Msg("method passed")
	return l.done(m, v)
}

// Replay sends the values already held by m once and classifies the result
// like a single fuzz iteration. m is released before Replay returns.
func (l *Loop) Replay(ctx context.Context, m *catalog.Method) Verdict {
	defer m.Release()

	l.session.Reset()
	v := Verdict{Method: m.Name}
	if !m.Generated() {
		return l.internal(m, v, internalError(m.Name, "", ErrNoValue))
	}
	v, stop := l.iterate(ctx, m, v)
	if stop {
		return v
	}
	v.Outcome = Success
	l.log.Info().Str("method", m.Name).Str("verdict", "PASS").Msg("replayed input passed")
	return l.done(m, v)
}

// iterate runs one call of m with the values in its slots. It reports true
// when the test of m is over; v is then the final verdict.
func (l *Loop) iterate(ctx context.Context, m *catalog.Method, v Verdict) (Verdict, bool) {
	l.trace(m, StateComposing)
	args, err := l.composer.Compose(m)
	if err != nil {
		return l.internal(m, v, err), true
	}

	l.trace(m, StateInvoking)
	inv, err := l.controller.Invoke(ctx, l.session, m, args)
	if err != nil {
		return l.internal(m, v, err), true
	}
	v.Iterations++
	if l.Observer != nil {
		l.Observer.ObserveCall(m.Name, inv.Outcome, inv.Duration)
	}

	l.trace(m, StateHealthChecking)
	if l.Health != nil {
		res, err := l.Health.Run(ctx)
		if err != nil {
			return l.internal(m, v, internalError(m.Name, "", err)), true
		}
		if !res.Passed() {
			v.Outcome = HealthCheckFailed
			v.Status = res.Status
			return l.fail(m, v, "'"+l.cfg.Command+"' returned "+strconv.Itoa(res.Status)), true
		}
	}

	l.trace(m, StateLivenessChecking)
	if l.Liveness != nil {
		state, err := l.Liveness.Check(l.cfg.PID)
		if state == liveness.Indeterminate {
			if err == nil {
				err = ErrTargetIndeterminate
			} else {
				err = errors.Wrapf(ErrTargetIndeterminate, "pid %d: %v", l.cfg.PID, err)
			}
			return l.internal(m, v, internalError(m.Name, "", err)), true
		}
		if state == liveness.Exited {
			if err != nil {
				l.log.Error().Err(err).Str("method", m.Name).Int("pid", l.cfg.PID).Msg("cannot read process status")
			}
			v.Outcome = TargetCrashed
			return l.fail(m, v, "process "+strconv.Itoa(l.cfg.PID)+" exited"), true
		}
	}

	if inv.Skip {
		v.Outcome = Success
		v.SkipReason = inv.Reason
		ev := l.log.Info().Str("method", m.Name).Str("verdict", "SKIP")
		if inv.Remote != nil {
			ev = ev.Str("error", inv.Remote.Error())
		}
		ev.Msg(inv.Reason)
		return l.done(m, v), true
	}
	switch inv.Outcome {
	case VoidContractViolated:
		v.Outcome = VoidContractViolated
		return l.fail(m, v, "void method returns '"+inv.Signature+"' instead of '"+EmptyResponse+"'"), true
	case RemoteNoReplyOrTimeout:
		v.Outcome = RemoteNoReplyOrTimeout
		return l.fail(m, v, "no reply: "+inv.Remote.Error()), true
	}

	l.trace(m, StateLogging)
	l.record(m, calllog.StatusSuccess)
	return v, false
}

// fail reports a failing verdict: the record of the triggering input first,
// then the failure, the input on the console, the reproducer and the stored
// crash.
func (l *Loop) fail(m *catalog.Method, v Verdict, reason string) Verdict {
	status := calllog.StatusCrash
	if v.Outcome == HealthCheckFailed {
		status = calllog.StatusCommandError
	}
	l.record(m, status)

	l.log.Error().
		Str("method", m.Name).
		Str("object", l.cfg.Object).
		Str("interface", l.cfg.Interface).
		Str("outcome", v.Outcome.String()).
		Str("verdict", v.Label()).
		Msg(reason)

	for _, line := range calllog.Describe(m.Signatures(), m.Values()) {
		l.log.Error().Str("method", m.Name).Msg("on input: " + line)
	}

	v.Reproducer = Reproducer{
		Binary:     l.cfg.Binary,
		Bus:        l.cfg.Bus,
		BusAddress: l.cfg.BusAddress,
		BusName:    l.cfg.BusName,
		Object:     l.cfg.Object,
		Interface:  l.cfg.Interface,
		Method:     m.Name,
		BufferSize: l.cfg.BufferSize,
		Command:    l.cfg.Command,
	}.String()
	l.log.Error().Str("method", m.Name).Msg("reproducer: " + v.Reproducer)

	if l.Crashes != nil {
		v.Artifact = l.saveCrash(m, v)
	}
	return l.done(m, v)
}

func (l *Loop) saveCrash(m *catalog.Method, v Verdict) string {
	c, err := artifact.NewCrash(m)
	if err != nil {
		l.log.Warn().Err(err).Str("method", m.Name).Msg("cannot capture failing input")
		return ""
	}
	c.BusName = l.cfg.BusName
	c.Object = l.cfg.Object
	c.Interface = l.cfg.Interface
	c.Verdict = v.Outcome.String()
	c.Code = v.Code()
	path, err := l.Crashes.Save(c)
	if err != nil {
		l.log.Warn().Err(err).Str("method", m.Name).Msg("cannot store failing input")
		return ""
	}
	l.log.Info().Str("method", m.Name).Str("path", path).Msg("stored failing input")
	return path
}

func (l *Loop) record(m *catalog.Method, status calllog.Status) {
	if l.Sink == nil {
		return
	}
	line, diags := calllog.Format(calllog.Entry{
		Interface:  l.cfg.Interface,
		Object:     l.cfg.Object,
		Method:     m.Name,
		Signatures: m.Signatures(),
		Values:     m.Values(),
		Status:     status,
	})
	for _, d := range diags {
		l.log.Warn().Str("method", m.Name).Msg(d)
	}
	if err := l.Sink.WriteRecord(line); err != nil {
		l.log.Warn().Err(err).Str("method", m.Name).Msg("cannot write call record")
	}
}

func (l *Loop) internal(m *catalog.Method, v Verdict, err error) Verdict {
	var ie *InternalError
	if !errors.As(err, &ie) {
		err = internalError(m.Name, "", err)
	}
	v.Outcome = InternalErrorOutcome
	v.Err = err
	l.log.Error().Err(err).Str("method", m.Name).Msg("testing aborted")
	return l.done(m, v)
}

func (l *Loop) done(m *catalog.Method, v Verdict) Verdict {
	l.trace(m, StateDone)
	l.session.Reset()
	return v
}

func (l *Loop) trace(m *catalog.Method, s State) {
	l.log.Trace().Str("method", m.Name).Str("state", s.String()).Msg("fuzz state")
}
