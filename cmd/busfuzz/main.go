package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"

	"github.com/busfuzz/busfuzz/bus"
	"github.com/busfuzz/busfuzz/cmd/busfuzz/cliutil"
	"github.com/busfuzz/busfuzz/cmd/busfuzz/flags"
	"github.com/busfuzz/busfuzz/fuzz"
)

const (
	versionText = "Print the version"
)

var (
	Version   = "DEV"
	BuildTime = "unknown"
)

func main() {
	buildInfo := cliutil.GetBuildInfo(BuildTime, Version)

	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   versionText,
	}

	app := &cli.App{}
	app.Name = fuzz.DefaultBinary
	app.Usage = "Fuzz the methods of a D-Bus service"
	app.UsageText = "busfuzz [command] [command options]"
	app.Copyright = fmt.Sprintf("(c) %d The busfuzz authors", time.Now().Year())
	app.Version = fmt.Sprintf("%s (built %s)", Version, BuildTime)
	app.Description = `busfuzz introspects the objects of a bus name and calls every method it finds with
	random arguments. It reports methods that crash the service, stop answering, or
	return data although they are declared to return nothing.

	Flags go after the command; without a command the service is fuzzed.`
	app.Flags = fuzzFlags()
	app.Action = cliutil.Action(fuzzAction(buildInfo))
	app.Commands = commands(buildInfo)

	runApp(app)
}

func runApp(app *cli.App) {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cliutil.InternalErrorExitCode)
	}
}

func commands(buildInfo *cliutil.BuildInfo) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "fuzz",
			Action:    cliutil.Action(fuzzAction(buildInfo)),
			Usage:     "Fuzz the methods of a bus name",
			UsageText: "busfuzz fuzz -n NAME [-o OBJECT] [-i INTERFACE] [-t METHOD] [command options]",
			Description: `Calls every selected method with random arguments until the value generator is
exhausted or the method fails. The exit status is the verdict code of the first failing method:
1 when the service crashed or stopped answering, 2 when a void method returned data,
4 when the health check command failed and 255 when the run could not test anything.`,
			Flags: fuzzFlags(),
		},
		{
			Name:        "list",
			Action:      cliutil.Action(listAction),
			Usage:       "List the methods that would be fuzzed",
			UsageText:   "busfuzz list -n NAME [-o OBJECT] [-i INTERFACE] [-t METHOD] [command options]",
			Description: "Introspects the bus name and prints every selected method without calling it.",
			Flags:       listFlags(),
		},
		{
			Name:      "replay",
			Action:    cliutil.Action(replayAction(buildInfo)),
			Usage:     "Resend a stored failing input",
			ArgsUsage: "FILE",
			Description: `Sends the input stored in FILE by a previous run exactly once and reports the
verdict with the same exit status as fuzz.`,
			Flags: replayFlags(),
		},
		{
			Name: "version",
			Action: func(c *cli.Context) error {
				fmt.Fprintln(c.App.Writer, buildInfo.String())
				return nil
			},
			Usage:       versionText,
			Description: versionText,
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    flags.Config,
		Usage:   "Specifies a YAML file supplying flag values. Defaults to config.yml in ~/.busfuzz or /etc/busfuzz.",
		EnvVars: []string{"BUSFUZZ_CONFIG"},
	}
}

// connectionFlags select the bus and the process under test.
func connectionFlags() []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.BusName,
			Aliases: []string{"n"},
			Usage:   "Well known bus name of the tested service.",
			EnvVars: []string{"BUSFUZZ_BUS_NAME"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.Bus,
			Value:   bus.System,
			Usage:   "Bus to connect to {system, session}.",
			EnvVars: []string{"BUSFUZZ_BUS"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.BusAddress,
			Usage:   "Address of the bus, overrides --" + flags.Bus + ".",
			EnvVars: []string{"BUSFUZZ_BUS_ADDRESS"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.Proc,
			Value:   "/proc",
			Usage:   "Mount point of procfs, used to check that the tested process is alive.",
			EnvVars: []string{"BUSFUZZ_PROC"},
		}),
	}
}

// selectionFlags narrow down the tested methods.
func selectionFlags() []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.Object,
			Aliases: []string{"o"},
			Usage:   "Object path to test. The whole object tree is walked when not given.",
			EnvVars: []string{"BUSFUZZ_OBJECT"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.Interface,
			Aliases: []string{"i"},
			Usage:   "Only test this interface. Standard interfaces are only tested when named here.",
			EnvVars: []string{"BUSFUZZ_INTERFACE"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.Method,
			Aliases: []string{"t"},
			Usage:   "Only test this method.",
			EnvVars: []string{"BUSFUZZ_METHOD"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.Suppressions,
			Aliases: []string{"s"},
			Usage:   "YAML file of methods that are never called. Defaults to suppressions.yml in ~/.busfuzz or /etc/busfuzz.",
			EnvVars: []string{"BUSFUZZ_SUPPRESSIONS"},
		}),
	}
}

// callFlags control how calls are made and judged.
func callFlags() []cli.Flag {
	return []cli.Flag{
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    flags.BufferSize,
			Aliases: []string{"b"},
			Usage:   fmt.Sprintf("Maximum length of generated strings in bytes. Values below %d select %d.", fuzz.MinBufferSize, fuzz.DefaultBufferSize),
			EnvVars: []string{"BUSFUZZ_BUFFER_SIZE"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.Command,
			Aliases: []string{"e"},
			Usage:   "Shell command run after every call; a non-zero exit status fails the method.",
			EnvVars: []string{"BUSFUZZ_COMMAND"},
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:    flags.TimeoutBackoff,
			Value:   fuzz.DefaultTimeoutBackoff,
			Usage:   "Pause after a call timed out.",
			EnvVars: []string{"BUSFUZZ_TIMEOUT_BACKOFF"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.CallLogDir,
			Usage:   "Write a record of every call to <dir>/<bus-name>.csv.",
			EnvVars: []string{"BUSFUZZ_CALL_LOG_DIR"},
		}),
	}
}

func fuzzFlags() []cli.Flag {
	fs := []cli.Flag{configFlag()}
	fs = append(fs, connectionFlags()...)
	fs = append(fs, selectionFlags()...)
	fs = append(fs, callFlags()...)
	fs = append(fs,
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    flags.MaxExceptions,
			Value:   fuzz.DefaultMaxExceptions,
			Usage:   "Number of error replies after which a method is considered tested.",
			EnvVars: []string{"BUSFUZZ_MAX_EXCEPTIONS"},
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    flags.Iterations,
			Usage:   "Calls of methods whose arguments are all fixed-size. Zero selects the generator default.",
			EnvVars: []string{"BUSFUZZ_ITERATIONS"},
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:    flags.Seed,
			Usage:   "Seed of the value generator. Zero picks one from the clock.",
			EnvVars: []string{"BUSFUZZ_SEED"},
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:    flags.KeepGoing,
			Usage:   "Continue with the next method after a failure, as long as the tested process runs.",
			EnvVars: []string{"BUSFUZZ_KEEP_GOING"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.CrashDir,
			Usage:   "Store the input of every failing method in this directory for replay.",
			EnvVars: []string{"BUSFUZZ_CRASH_DIR"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.Metrics,
			Usage:   "Listen address for the Prometheus metrics server, e.g. localhost:9101.",
			EnvVars: []string{"BUSFUZZ_METRICS"},
		}),
	)
	return append(fs, cliutil.ConfigureLoggingFlags(false)...)
}

func listFlags() []cli.Flag {
	fs := []cli.Flag{configFlag()}
	fs = append(fs, connectionFlags()...)
	fs = append(fs, selectionFlags()...)
	return append(fs, cliutil.ConfigureLoggingFlags(false)...)
}

func replayFlags() []cli.Flag {
	fs := []cli.Flag{configFlag()}
	fs = append(fs, connectionFlags()...)
	fs = append(fs, callFlags()...)
	return append(fs, cliutil.ConfigureLoggingFlags(false)...)
}
