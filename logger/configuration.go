package logger

import (
	"path/filepath"
)

const (
	defaultMinLevel    = "info"
	defaultLogFilename = "busfuzz.log"

	// A fuzz run at debug level logs every generated value.
	rollingMaxSizeMB  = 10
	rollingMaxBackups = 5
	rollingMaxAgeDays = 0
)

// Config selects the writers of a logger. A nil writer config disables that writer.
type Config struct {
	ConsoleConfig *ConsoleConfig
	FileConfig    *FileConfig
	RollingConfig *RollingConfig

	MinLevel string // trace | debug | info | warn | error | fatal
}

type ConsoleConfig struct {
	noColor bool
	asJSON  bool
}

type FileConfig struct {
	Dirname  string
	Filename string
}

func (fc *FileConfig) Fullpath() string {
	return filepath.Join(fc.Dirname, fc.Filename)
}

type RollingConfig struct {
	Dirname  string
	Filename string

	maxSize    int // megabytes
	maxBackups int // files
	maxAge     int // days
}

// Options are the logging flag values of one command.
type Options struct {
	MinLevel        string
	DisableTerminal bool
	JSON            bool
	NoColor         bool
	// LogFile names a single append-only file and wins over LogDirectory.
	LogFile string
	// LogDirectory holds a rolling busfuzz.log.
	LogDirectory string
}

// CreateConfig translates flag values into writer configs.
func CreateConfig(opts Options) *Config {
	cfg := &Config{MinLevel: opts.MinLevel}
	if cfg.MinLevel == "" {
		cfg.MinLevel = defaultMinLevel
	}
	if !opts.DisableTerminal {
		cfg.ConsoleConfig = &ConsoleConfig{noColor: opts.NoColor, asJSON: opts.JSON}
	}

	switch {
	case opts.LogFile != "":
		dirname, filename := filepath.Split(opts.LogFile)
		cfg.FileConfig = &FileConfig{Dirname: dirname, Filename: filename}
	case opts.LogDirectory != "":
		cfg.RollingConfig = &RollingConfig{
			Dirname:    opts.LogDirectory,
			Filename:   defaultLogFilename,
			maxSize:    rollingMaxSizeMB,
			maxBackups: rollingMaxBackups,
			maxAge:     rollingMaxAgeDays,
		}
	}
	return cfg
}
