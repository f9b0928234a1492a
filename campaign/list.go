package campaign

import (
	"context"
	"strings"

	"github.com/busfuzz/busfuzz/dbusvalue"
)

// Entry describes one selected method and whether a run would fuzz it.
type Entry struct {
	Object    string
	Interface string
	Method    string
	// Signature of the input arguments in tuple form.
	Signature string
	Void      bool
	Fuzzed    bool
	// Reason is set when Fuzzed is false.
	Reason string
}

// List introspects the selection without calling any tested method.
func (c *Campaign) List(ctx context.Context) ([]Entry, error) {
	objects, err := c.objects(ctx)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, obj := range objects {
		for _, iface := range obj.Interfaces {
			for _, info := range iface.Methods {
				e := Entry{
					Object:    obj.Path,
					Interface: iface.Name,
					Method:    info.Name,
					Signature: "(" + strings.Join(info.In, "") + ")",
					Void:      info.Void,
					Fuzzed:    true,
				}
				if reason, ok := c.Suppressions.Suppressed(iface.Name, info.Name); ok {
					e.Fuzzed = false
					e.Reason = "suppressed"
					if reason != "" {
						e.Reason += ": " + reason
					}
				} else if sig, ok := unsupported(info.In); ok {
					e.Fuzzed = false
					e.Reason = "unsupported signature " + sig
				}
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

// unsupported returns the first argument signature the generator cannot
// produce values for.
func unsupported(signatures []string) (string, bool) {
	for _, sig := range signatures {
		if !dbusvalue.IsElementary(sig) {
			return sig, true
		}
	}
	return "", false
}
