package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/busfuzz/busfuzz/artifact"
	"github.com/busfuzz/busfuzz/bus"
	"github.com/busfuzz/busfuzz/calllog"
	"github.com/busfuzz/busfuzz/campaign"
	"github.com/busfuzz/busfuzz/cmd/busfuzz/cliutil"
	"github.com/busfuzz/busfuzz/cmd/busfuzz/flags"
	"github.com/busfuzz/busfuzz/config"
	"github.com/busfuzz/busfuzz/fuzz"
	"github.com/busfuzz/busfuzz/generator"
	"github.com/busfuzz/busfuzz/healthcheck"
	"github.com/busfuzz/busfuzz/liveness"
	"github.com/busfuzz/busfuzz/logger"
	"github.com/busfuzz/busfuzz/metrics"
)

var errNoBusName = errors.New("missing --" + flags.BusName)

// environment is everything a command needs to talk to the tested service.
type environment struct {
	client   *bus.Client
	campaign *campaign.Campaign
	registry *prometheus.Registry
	closers  []io.Closer
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func campaignConfig(c *cli.Context, busName string) campaign.Config {
	return campaign.Config{
		Bus:            c.String(flags.Bus),
		BusAddress:     c.String(flags.BusAddress),
		BusName:        busName,
		Object:         c.String(flags.Object),
		Interface:      c.String(flags.Interface),
		Method:         c.String(flags.Method),
		BufferSize:     c.Int(flags.BufferSize),
		Command:        c.String(flags.Command),
		MaxExceptions:  c.Int(flags.MaxExceptions),
		TimeoutBackoff: c.Duration(flags.TimeoutBackoff),
		Binary:         c.App.Name,
		KeepGoing:      c.Bool(flags.KeepGoing),
	}
}

func generatorFactory(c *cli.Context) func() generator.Generator {
	opts := generator.Options{
		Seed:       int64(c.Int(flags.Seed)),
		Iterations: c.Int(flags.Iterations),
	}
	return func() generator.Generator {
		return generator.New(opts)
	}
}

// newEnvironment connects to the bus and prepares a campaign against busName. calls enables the
// components that only matter when methods are actually called.
func newEnvironment(c *cli.Context, busName string, calls bool, log *zerolog.Logger) (*environment, error) {
	if busName == "" {
		return nil, errNoBusName
	}
	conn, err := bus.Connect(c.String(flags.Bus), c.String(flags.BusAddress))
	if err != nil {
		return nil, err
	}
	env := &environment{registry: prometheus.NewRegistry()}
	env.client = bus.NewClient(conn, busName, log)
	env.closers = append(env.closers, env.client)

	camp := campaign.New(campaignConfig(c, busName), env.client, generatorFactory(c), log)
	env.campaign = camp

	suppressions, err := config.LoadSuppressions(c.String(flags.Suppressions))
	if err != nil {
		env.Close()
		return nil, err
	}
	if src := suppressions.Source(); src != "" {
		log.Info().Str("file", src).Int("methods", suppressions.Len()).Msg("loaded suppressions")
	}
	camp.Suppressions = suppressions

	if !calls {
		return env, nil
	}

	probe, err := liveness.NewProbe(c.String(flags.Proc))
	if err != nil {
		env.Close()
		return nil, err
	}
	camp.Liveness = probe

	if command := c.String(flags.Command); command != "" {
		camp.Health = healthcheck.New(command)
	}
	if dir := c.String(flags.CallLogDir); dir != "" {
		sink, err := calllog.NewFileSink(dir, busName)
		if err != nil {
			env.Close()
			return nil, err
		}
		camp.Sink = sink
		env.closers = append(env.closers, sink)
	}
	if dir := c.String(flags.CrashDir); dir != "" {
		camp.Crashes = artifact.NewStore(dir)
	}

	collector, err := metrics.NewCollector(env.registry)
	if err != nil {
		env.Close()
		return nil, err
	}
	camp.Metrics = collector
	metrics.RegisterBuildInfo(env.registry, BuildTime, Version)
	return env, nil
}

// serve runs fn alongside the metrics server, when one is configured, and stops the server once fn
// returns.
func serve(ctx context.Context, c *cli.Context, env *environment, log *zerolog.Logger, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go waitForSignal(ctx, cancel, log)

	g, gctx := errgroup.WithContext(ctx)
	if addr := c.String(flags.Metrics); addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrapf(err, "cannot listen on %s", addr)
		}
		g.Go(func() error {
			return metrics.ServeMetrics(gctx, l, env.registry, log)
		})
	}
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}

func exitStatus(code int, msg string) error {
	if code == fuzz.CodeSuccess {
		return nil
	}
	return cli.Exit(msg, code&0xff)
}

func fuzzAction(buildInfo *cliutil.BuildInfo) cli.ActionFunc {
	return func(c *cli.Context) error {
		log := logger.CreateLoggerFromContext(c, logger.EnableTerminalLog)
		buildInfo.Log(log)

		env, err := newEnvironment(c, c.String(flags.BusName), true, log)
		if err != nil {
			return err
		}
		defer env.Close()

		var report *campaign.Report
		err = serve(c.Context, c, env, log, func(ctx context.Context) error {
			var runErr error
			report, runErr = env.campaign.Run(ctx)
			return runErr
		})
		if err != nil {
			return err
		}

		res, failed := report.Failed()
		if !failed {
			return nil
		}
		msg := fmt.Sprintf("%s.%s on %s: %s", res.Interface, res.Verdict.Method, res.Object, res.Verdict.Outcome)
		if res.Verdict.Err != nil {
			msg += ": " + res.Verdict.Err.Error()
		}
		return exitStatus(report.Code(), msg)
	}
}

func listAction(c *cli.Context) error {
	log := logger.CreateLoggerFromContext(c, logger.EnableTerminalLog)
	env, err := newEnvironment(c, c.String(flags.BusName), false, log)
	if err != nil {
		return err
	}
	defer env.Close()

	entries, err := env.campaign.List(c.Context)
	if err != nil {
		return err
	}
	return printEntries(c.App.Writer, entries)
}

func printEntries(out io.Writer, entries []campaign.Entry) error {
	const (
		minWidth = 0
		tabWidth = 8
		padding  = 2
		padChar  = ' '
		tabFlags = 0
	)
	writer := tabwriter.NewWriter(out, minWidth, tabWidth, padding, padChar, tabFlags)
	fmt.Fprintln(writer, "OBJECT\tINTERFACE\tMETHOD\tSIGNATURE\tVOID\tFUZZED\t")
	for _, e := range entries {
		fuzzed := "yes"
		if !e.Fuzzed {
			fuzzed = "no (" + e.Reason + ")"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%t\t%s\t\n", e.Object, e.Interface, e.Method, e.Signature, e.Void, fuzzed)
	}
	return writer.Flush()
}

func replayAction(buildInfo *cliutil.BuildInfo) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("replay needs exactly one crash file", cliutil.InternalErrorExitCode)
		}
		log := logger.CreateLoggerFromContext(c, logger.EnableTerminalLog)
		buildInfo.Log(log)

		crash, err := artifact.Load(c.Args().First())
		if err != nil {
			return err
		}
		busName := c.String(flags.BusName)
		if busName == "" {
			busName = crash.BusName
		}
		env, err := newEnvironment(c, busName, true, log)
		if err != nil {
			return err
		}
		defer env.Close()

		var v fuzz.Verdict
		err = serve(c.Context, c, env, log, func(ctx context.Context) error {
			var replayErr error
			v, replayErr = env.campaign.Replay(ctx, crash)
			return replayErr
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s %s.%s: %s (recorded %s)\n", v.Label(), crash.Interface, crash.Method, v.Outcome, crash.Verdict)
		return exitStatus(v.Code(), "")
	}
}
