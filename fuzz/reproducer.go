package fuzz

import (
	"fmt"
	"strings"
)

const (
	// DefaultBinary is the program name used in reproducers.
	DefaultBinary = "busfuzz"
	// DefaultBus is the bus connected to when none is named.
	DefaultBus = "system"
)

// Reproducer renders the command line that re-runs exactly one method.
// BufferSize and Command are included only when set by the user, Bus only
// when it is not DefaultBus. BusAddress replaces Bus when set.
type Reproducer struct {
	Binary     string
	Bus        string
	BusAddress string
	BusName    string
	Object     string
	Interface  string
	Method     string
	BufferSize int
	Command    string
}

func (r Reproducer) String() string {
	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s -v", binary)
	switch {
	case r.BusAddress != "":
		fmt.Fprintf(&b, " --bus-address %s", shellQuote(r.BusAddress))
	case r.Bus != "" && r.Bus != DefaultBus:
		fmt.Fprintf(&b, " --bus %s", r.Bus)
	}
	fmt.Fprintf(&b, " -n %s -o %s -i %s -t %s", r.BusName, r.Object, r.Interface, r.Method)
	if r.BufferSize != 0 {
		fmt.Fprintf(&b, " -b %d", r.BufferSize)
	}
	if r.Command != "" {
		fmt.Fprintf(&b, " -e %s", shellQuote(r.Command))
	}
	return b.String()
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
