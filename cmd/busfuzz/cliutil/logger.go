package cliutil

import (
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"

	"github.com/busfuzz/busfuzz/cmd/busfuzz/flags"
)

var (
	traceLevelWarning = "At trace level busfuzz logs every state of the fuzz loop, which is a lot."

	FlagLogOutput = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    flags.LogFormatOutput,
		Usage:   "Output format for the logs (default, json)",
		Value:   flags.LogFormatOutputValueDefault,
		EnvVars: []string{"BUSFUZZ_LOG_FORMAT"},
	})
)

func ConfigureLoggingFlags(shouldHide bool) []cli.Flag {
	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.LogLevel,
			Value:   "info",
			Usage:   "Application logging level {trace, debug, info, warn, error, fatal}. " + traceLevelWarning,
			EnvVars: []string{"BUSFUZZ_LOGLEVEL"},
			Hidden:  shouldHide,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.LogFile,
			Usage:   "Save application log to this file.",
			EnvVars: []string{"BUSFUZZ_LOGFILE"},
			Hidden:  shouldHide,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:    flags.LogDirectory,
			Usage:   "Save application log to this directory, rotating the files.",
			EnvVars: []string{"BUSFUZZ_LOGDIRECTORY"},
			Hidden:  shouldHide,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:    flags.NoColor,
			Usage:   "Disable colors in the console output.",
			EnvVars: []string{"BUSFUZZ_NO_COLOR", "NO_COLOR"},
			Hidden:  shouldHide,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:    flags.Verbose,
			Aliases: []string{"v"},
			Usage:   "Log at debug level unless --" + flags.LogLevel + " is given.",
			EnvVars: []string{"BUSFUZZ_VERBOSE"},
		}),
		FlagLogOutput,
	}
}
