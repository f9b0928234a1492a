package flags

const (
	// BusName is the well known name of the tested service
	BusName = "bus-name"

	// Object is the single object path to test; the whole tree is walked when unset
	Object = "object"

	// Interface restricts testing to one interface
	Interface = "interface"

	// Method restricts testing to one method
	Method = "method"

	// BufferSize is the maximum length of generated strings
	BufferSize = "buffer-size"

	// Command is the health check run after every call
	Command = "command"

	// Bus selects the system or the session bus
	Bus = "bus"

	// BusAddress connects to a bus at an explicit address instead
	BusAddress = "bus-address"

	// Suppressions is the YAML file of methods that must not be called
	Suppressions = "suppressions"

	// MaxExceptions is the number of tolerated error replies per method
	MaxExceptions = "max-exceptions"

	// Iterations is the number of calls of methods with fixed-size arguments
	Iterations = "iterations"

	// Seed of the value generator
	Seed = "seed"

	// TimeoutBackoff is the pause after a timed out call
	TimeoutBackoff = "timeout-backoff"

	// KeepGoing continues with the next method after a failure
	KeepGoing = "keep-going"

	// CallLogDir enables the call log
	CallLogDir = "call-log-dir"

	// CrashDir is where failing inputs are stored
	CrashDir = "crash-dir"

	// Metrics is the listen address of the metrics server
	Metrics = "metrics"

	// Proc is the mount point of procfs
	Proc = "proc"

	// Config is the YAML file supplying flag values
	Config = "config"

	// LogLevel is the command line flag for the logging level
	LogLevel = "loglevel"

	// LogFile is the command line flag to define the file where application logs will be stored
	LogFile = "logfile"

	// LogDirectory is the command line flag to define the directory where application logs will be stored
	LogDirectory = "log-directory"

	// LogFormatOutput allows the command line logs to be output as JSON
	LogFormatOutput = "log-format"

	LogFormatOutputValueDefault = "default"
	LogFormatOutputValueJSON    = "json"

	// NoColor disables colored console output
	NoColor = "no-color"

	// Verbose lowers the logging level to debug
	Verbose = "verbose"
)
