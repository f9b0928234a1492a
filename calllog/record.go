// Package calllog formats and stores one record per fuzzed call so a failing
// input can be inspected and resent later.
package calllog

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/busfuzz/busfuzz/dbusvalue"
)

// Status closes every record.
type Status string

const (
	StatusSuccess      Status = "Success"
	StatusCrash        Status = "Crash"
	StatusCommandError Status = "Command execution error"

	separator = ";"
)

// Entry is the content of one record. Signatures and Values are parallel and
// in declaration order.
type Entry struct {
	Interface  string
	Object     string
	Method     string
	Signatures []string
	Values     []dbusvalue.Value
	Status     Status
}

// Format renders an entry as
//
//	interface;object;method;sig;value;...;Status
//
// String-like values are hex encoded. Problems that prevented a field from
// being rendered are returned as diagnostics; the record itself stays
// well-formed. A compound signature stops the argument fields.
func Format(e Entry) (string, []string) {
	var (
		b     strings.Builder
		diags []string
	)
	field := func(s string) {
		b.WriteString(s)
		b.WriteString(separator)
	}
	field(e.Interface)
	field(e.Object)
	field(e.Method)

	for i, sig := range e.Signatures {
		if sig == "" {
			diags = append(diags, fmt.Sprintf("argument %d has no signature", i))
			break
		}
		if dbusvalue.IsCompound(sig) {
			diags = append(diags, fmt.Sprintf("logging of signature %q is not supported", sig))
			break
		}
		var v dbusvalue.Value
		if i < len(e.Values) {
			v = e.Values[i]
		}
		value, err := formatValue(sig, v)
		if err != nil {
			diags = append(diags, err.Error())
		}
		field(sig)
		field(value)
	}
	b.WriteString(string(e.Status))
	return b.String(), diags
}

func formatValue(sig string, v dbusvalue.Value) (string, error) {
	if v == nil {
		return "", fmt.Errorf("argument %q has no value", sig)
	}
	if v.Signature() != sig {
		return "", fmt.Errorf("argument declared %q holds a %q value", sig, v.Signature())
	}
	switch t := v.(type) {
	case dbusvalue.String, dbusvalue.ObjectPath, dbusvalue.Signature:
		s, _ := dbusvalue.Text(t)
		return hex.EncodeToString([]byte(s)), nil
	case dbusvalue.Variant:
		s, ok := dbusvalue.Text(t)
		if !ok {
			return "", fmt.Errorf("unable to deconstruct variant %s", t)
		}
		return hex.EncodeToString([]byte(s)), nil
	}
	return v.String(), nil
}

// Describe renders the values for the console, one "--sig-- 'value'" per
// argument, the way a failing input is reported.
func Describe(signatures []string, values []dbusvalue.Value) []string {
	lines := make([]string, 0, len(signatures))
	for i, sig := range signatures {
		var v dbusvalue.Value
		if i < len(values) {
			v = values[i]
		}
		switch {
		case v == nil:
			lines = append(lines, fmt.Sprintf("--%s-- <no value>", sig))
		case dbusvalue.IsStringLike(sig):
			if s, ok := dbusvalue.Text(v); ok {
				lines = append(lines, fmt.Sprintf("--%s [length: %d B]-- '%s'", sig, len(s), s))
			} else {
				lines = append(lines, fmt.Sprintf("--%s-- 'unable to deconstruct variant'", sig))
			}
		default:
			lines = append(lines, fmt.Sprintf("--%s-- '%s'", sig, v))
		}
	}
	return lines
}
