package cliutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func testApp(action cli.ActionFunc) *cli.App {
	return &cli.App{
		Name:      "busfuzz",
		Writer:    &bytes.Buffer{},
		ErrWriter: &bytes.Buffer{},
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "config"},
			altsrc.NewStringFlag(&cli.StringFlag{Name: "bus-name", Aliases: []string{"n"}}),
			altsrc.NewIntFlag(&cli.IntFlag{Name: "max-exceptions", Value: 50}),
		}, ConfigureLoggingFlags(true)...),
		Action: Action(action),
	}
}

func TestActionAppliesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("bus-name: org.example.Service\nmax-exceptions: 7\n"), 0600))

	var busName string
	var maxExceptions int
	app := testApp(func(c *cli.Context) error {
		busName = c.String("bus-name")
		maxExceptions = c.Int("max-exceptions")
		return nil
	})
	require.NoError(t, app.Run([]string{"busfuzz", "--config", path}))
	assert.Equal(t, "org.example.Service", busName)
	assert.Equal(t, 7, maxExceptions)
}

func TestActionFlagsWinOverConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("bus-name: org.example.Service\n"), 0600))

	var busName string
	app := testApp(func(c *cli.Context) error {
		busName = c.String("bus-name")
		return nil
	})
	require.NoError(t, app.Run([]string{"busfuzz", "--config", path, "-n", "org.example.Other"}))
	assert.Equal(t, "org.example.Other", busName)
}

func TestActionInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("max-exceptions: many\n"), 0600))

	app := testApp(func(c *cli.Context) error { return nil })
	// keep HandleExitCoder from exiting the test binary
	cli.OsExiter = func(int) {}
	defer func() { cli.OsExiter = os.Exit }()

	err := app.Run([]string{"busfuzz", "--config", path})
	exitErr, ok := err.(cli.ExitCoder)
	require.True(t, ok)
	assert.Equal(t, InternalErrorExitCode, exitErr.ExitCode())
}

func TestWithErrorHandler(t *testing.T) {
	cause := errors.New("cannot connect to bus")
	err := WithErrorHandler(func(*cli.Context) error { return cause })(nil)
	exitErr, ok := err.(cli.ExitCoder)
	require.True(t, ok)
	assert.Equal(t, 255, exitErr.ExitCode())
	assert.Equal(t, cause.Error(), exitErr.Error())

	err = WithErrorHandler(func(*cli.Context) error { return cli.Exit("void", 2) })(nil)
	assert.Equal(t, 2, err.(cli.ExitCoder).ExitCode())

	assert.NoError(t, WithErrorHandler(func(*cli.Context) error { return nil })(nil))
}

func TestBuildInfo(t *testing.T) {
	bi := GetBuildInfo("2026-01-01", "1.2.3")
	assert.Equal(t, "1.2.3", bi.Version())
	assert.Contains(t, bi.String(), "busfuzz 1.2.3 (built 2026-01-01")
	assert.Contains(t, bi.String(), bi.OSArch())
}
