package dbusvalue

import (
	"strings"

	"github.com/pkg/errors"
)

// Tuple is an ordered, fixed-arity group of values handed to the bus as the
// body of one method call. It owns a private copy of its elements, so the
// values it was built from stay readable after the call consumed it.
type Tuple struct {
	descriptor string
	elements   []Value
}

// Descriptor builds the type-tagged descriptor of a tuple, e.g. "(@s@i)" for
// the signatures ["s", "i"].
func Descriptor(signatures []string) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, sig := range signatures {
		b.WriteByte('@')
		b.WriteString(sig)
	}
	b.WriteByte(')')
	return b.String()
}

// NewTuple constructs a tuple from a descriptor and the values it describes.
// The descriptor must match the signatures of the values element by element.
func NewTuple(descriptor string, values ...Value) (Tuple, error) {
	signatures := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			return Tuple{}, errors.Errorf("tuple element %d has no value", i)
		}
		signatures[i] = v.Signature()
	}
	if expected := Descriptor(signatures); expected != descriptor {
		return Tuple{}, errors.Errorf("descriptor %q does not describe values %q", descriptor, expected)
	}
	elements := make([]Value, len(values))
	copy(elements, values)
	return Tuple{descriptor: descriptor, elements: elements}, nil
}

// Len is the arity of the tuple.
func (t Tuple) Len() int { return len(t.elements) }

// At returns the i-th element.
func (t Tuple) At(i int) Value { return t.elements[i] }

// Elements returns a copy of the elements in call order.
func (t Tuple) Elements() []Value {
	out := make([]Value, len(t.elements))
	copy(out, t.elements)
	return out
}

// Descriptor returns the type-tagged descriptor the tuple was built with.
func (t Tuple) Descriptor() string { return t.descriptor }

// Signature returns the plain D-Bus signature of the tuple, e.g. "(si)".
func (t Tuple) Signature() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, e := range t.elements {
		b.WriteString(e.Signature())
	}
	b.WriteByte(')')
	return b.String()
}

func (t Tuple) String() string {
	parts := make([]string, len(t.elements))
	for i, e := range t.elements {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
