// Package catalog holds the argument descriptors of the method currently
// under test.
package catalog

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/busfuzz/busfuzz/dbusvalue"
)

var ErrEmptySignature = errors.New("argument has no signature")

// Slot is one declared argument: its signature and the value generated for
// the current iteration.
type Slot struct {
	Signature string
	Value     dbusvalue.Value
}

// Method describes one method under test. Slots are kept in declaration
// order, which is both the call order and the logging order.
type Method struct {
	Name string
	Void bool
	// VariableLength is set when any argument is string-like, so the
	// generator varies string lengths across iterations.
	VariableLength bool

	slots []Slot
}

func NewMethod(name string, void bool) *Method {
	return &Method{Name: name, Void: void}
}

// AddArgument appends an argument with the given signature.
func (m *Method) AddArgument(signature string) error {
	if signature == "" {
		return errors.Wrapf(ErrEmptySignature, "method %s argument %d", m.Name, len(m.slots))
	}
	if dbusvalue.IsStringLike(signature) || strings.ContainsAny(signature, "sv") {
		m.VariableLength = true
	}
	m.slots = append(m.slots, Slot{Signature: signature})
	return nil
}

func (m *Method) ArgCount() int {
	return len(m.slots)
}

// Slot returns a pointer to the i-th slot so the generator can fill it.
func (m *Method) Slot(i int) *Slot {
	return &m.slots[i]
}

func (m *Method) Signatures() []string {
	sigs := make([]string, len(m.slots))
	for i, s := range m.slots {
		sigs[i] = s.Signature
	}
	return sigs
}

// Values returns the generated values in call order. Slots without a value
// yield nil entries.
func (m *Method) Values() []dbusvalue.Value {
	values := make([]dbusvalue.Value, len(m.slots))
	for i, s := range m.slots {
		values[i] = s.Value
	}
	return values
}

// Generated reports whether every slot holds a value.
func (m *Method) Generated() bool {
	for _, s := range m.slots {
		if s.Value == nil {
			return false
		}
	}
	return true
}

// ClearValues drops every generated value but keeps the signatures.
func (m *Method) ClearValues() {
	for i := range m.slots {
		m.slots[i].Value = nil
	}
}

// Release frees every slot. Calling it more than once is a no-op.
func (m *Method) Release() {
	m.ClearValues()
	m.slots = nil
	m.VariableLength = false
}

// LiveSlots is the number of slots still held by the method.
func (m *Method) LiveSlots() int {
	return len(m.slots)
}

// String renders the method as Name(sig, sig).
func (m *Method) String() string {
	return m.Name + "(" + strings.Join(m.Signatures(), ", ") + ")"
}
