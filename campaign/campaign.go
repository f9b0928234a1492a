// Package campaign drives the fuzz loop over every selected method of a bus
// name and aggregates the verdicts.
package campaign

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/busfuzz/busfuzz/bus"
	"github.com/busfuzz/busfuzz/calllog"
	"github.com/busfuzz/busfuzz/config"
	"github.com/busfuzz/busfuzz/fuzz"
	"github.com/busfuzz/busfuzz/generator"
	"github.com/busfuzz/busfuzz/metrics"
)

// RootObject is where the object tree walk starts when no object is given.
const RootObject = "/"

var ErrNothingToTest = errors.New("no method matches the selection")

// Bus is the view of the tested bus name a campaign needs.
type Bus interface {
	Objects(ctx context.Context, root string, f bus.Filter) ([]bus.Object, error)
	Object(ctx context.Context, path string, f bus.Filter) (bus.Object, error)
	Proxy(path, iface string) fuzz.Proxy
	PID(ctx context.Context) (int, error)
}

type Config struct {
	// Bus and BusAddress name the bus the campaign is connected to.
	Bus        string
	BusAddress string
	BusName    string
	// Object is tested alone when set, otherwise the tree below RootObject
	// is walked.
	Object    string
	Interface string
	Method    string

	BufferSize     int
	Command        string
	MaxExceptions  int
	TimeoutBackoff time.Duration
	Binary         string
	// KeepGoing continues with the next method after a failure. The
	// campaign always stops once the tested process is gone.
	KeepGoing bool
}

func (c Config) filter() bus.Filter {
	return bus.Filter{Interface: c.Interface, Method: c.Method}
}

// Result is the verdict of one method.
type Result struct {
	Object    string
	Interface string
	Verdict   fuzz.Verdict
}

// Report collects the results of a run.
type Report struct {
	RunID   string
	Results []Result
}

// Failed returns the first failing result, if any.
func (r *Report) Failed() (Result, bool) {
	for _, res := range r.Results {
		if res.Verdict.Failed() {
			return res, true
		}
	}
	return Result{}, false
}

// Code is the verdict code of the run: the code of the first failing method,
// or success.
func (r *Report) Code() int {
	if res, ok := r.Failed(); ok {
		return res.Verdict.Code()
	}
	return fuzz.CodeSuccess
}

// ExitStatus is Code as a process exit status.
func (r *Report) ExitStatus() int {
	return r.Code() & 0xff
}

// Counts returns the number of passed, skipped and failed methods.
func (r *Report) Counts() (passed, skipped, failed int) {
	for _, res := range r.Results {
		switch {
		case res.Verdict.Failed():
			failed++
		case res.Verdict.Skipped():
			skipped++
		default:
			passed++
		}
	}
	return passed, skipped, failed
}

// Campaign tests the methods of one bus name. Health, Liveness, Sink,
// Crashes and Metrics are optional.
type Campaign struct {
	cfg          Config
	bus          Bus
	newGenerator func() generator.Generator
	log          *zerolog.Logger

	Suppressions *config.Suppressions
	Health       fuzz.HealthChecker
	Liveness     fuzz.LivenessChecker
	Sink         calllog.Sink
	Crashes      fuzz.CrashStore
	Metrics      *metrics.Collector
}

func New(cfg Config, b Bus, newGenerator func() generator.Generator, log *zerolog.Logger) *Campaign {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Campaign{cfg: cfg, bus: b, newGenerator: newGenerator, log: log}
}

// Run tests every selected method. The returned error is set when the
// campaign could not start; method failures are reported in the Report.
func (c *Campaign) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.New().String()}
	log := c.log.With().Str("run", report.RunID).Str("busName", c.cfg.BusName).Logger()

	pid := 0
	if c.Liveness != nil {
		var err error
		if pid, err = c.bus.PID(ctx); err != nil {
			return report, err
		}
		log.Info().Int("pid", pid).Msg("resolved tested process")
	}

	objects, err := c.objects(ctx)
	if err != nil {
		return report, err
	}
	if countMethods(objects) == 0 {
		return report, errors.Wrapf(ErrNothingToTest, "on %s", c.cfg.BusName)
	}

	gen := c.newGenerator()
	var timer *metrics.Timer
	if c.Metrics != nil {
		timer = c.Metrics.MethodTimer()
	}
	for _, obj := range objects {
		for _, iface := range obj.Interfaces {
			loop := c.newLoop(fuzz.Target{
				Bus:        c.cfg.Bus,
				BusAddress: c.cfg.BusAddress,
				BusName:    c.cfg.BusName,
				Object:     obj.Path,
				Interface:  iface.Name,
				PID:        pid,
			}, gen, &log)
			log.Info().Str("object", obj.Path).Str("interface", iface.Name).Int("methods", len(iface.Methods)).Msg("testing interface")

			for _, info := range iface.Methods {
				if timer != nil {
					timer.Start(iface.Name)
				}
				v := c.test(ctx, loop, info, &log)
				if timer != nil {
					timer.EndAndObserve(iface.Name)
				}
				if c.Metrics != nil {
					c.Metrics.ObserveVerdict(v)
				}
				report.Results = append(report.Results, Result{Object: obj.Path, Interface: iface.Name, Verdict: v})
				if c.stop(v) {
					log.Info().Str("method", info.Name).Str("outcome", v.Outcome.String()).Msg("stopping campaign")
					return report, nil
				}
			}
		}
	}

	passed, skipped, failed := report.Counts()
	log.Info().Int("passed", passed).Int("skipped", skipped).Int("failed", failed).Msg("campaign finished")
	return report, nil
}

func (c *Campaign) objects(ctx context.Context) ([]bus.Object, error) {
	if c.cfg.Object != "" {
		obj, err := c.bus.Object(ctx, c.cfg.Object, c.cfg.filter())
		if err != nil {
			return nil, err
		}
		return []bus.Object{obj}, nil
	}
	return c.bus.Objects(ctx, RootObject, c.cfg.filter())
}

func (c *Campaign) newLoop(target fuzz.Target, gen generator.Generator, log *zerolog.Logger) *fuzz.Loop {
	controller := fuzz.NewController(c.bus.Proxy(target.Object, target.Interface), c.cfg.TimeoutBackoff, log)
	loop := fuzz.NewLoop(fuzz.Config{
		Target:        target,
		BufferSize:    c.cfg.BufferSize,
		Command:       c.cfg.Command,
		MaxExceptions: c.cfg.MaxExceptions,
		Binary:        c.cfg.Binary,
	}, gen, controller, log)
	loop.Health = c.Health
	loop.Liveness = c.Liveness
	loop.Sink = c.Sink
	loop.Crashes = c.Crashes
	if c.Metrics != nil {
		loop.Observer = c.Metrics
	}
	return loop
}

func (c *Campaign) test(ctx context.Context, loop *fuzz.Loop, info bus.MethodInfo, log *zerolog.Logger) fuzz.Verdict {
	if reason, ok := c.Suppressions.Suppressed(info.Interface, info.Name); ok {
		if reason == "" {
			reason = "suppressed"
		}
		log.Info().Str("method", info.Name).Str("interface", info.Interface).Str("verdict", "SKIP").Msg(reason)
		return fuzz.Verdict{Method: info.Name, Outcome: fuzz.Success, SkipReason: reason}
	}
	m, err := info.Catalog()
	if err != nil {
		err = &fuzz.InternalError{Method: info.Name, Err: err}
		log.Error().Err(err).Str("method", info.Name).Msg("cannot set up method")
		return fuzz.Verdict{Method: info.Name, Outcome: fuzz.InternalErrorOutcome, Err: err}
	}
	return loop.Test(ctx, m)
}

func (c *Campaign) stop(v fuzz.Verdict) bool {
	switch v.Outcome {
	case fuzz.InternalErrorOutcome, fuzz.TargetCrashed:
		return true
	}
	return v.Failed() && !c.cfg.KeepGoing
}

func countMethods(objects []bus.Object) int {
	n := 0
	for _, obj := range objects {
		for _, iface := range obj.Interfaces {
			n += len(iface.Methods)
		}
	}
	return n
}
