package fuzz

import (
	"github.com/pkg/errors"

	"github.com/busfuzz/busfuzz/catalog"
	"github.com/busfuzz/busfuzz/dbusvalue"
)

// DefaultMaxDescriptorLength bounds the composed tuple descriptor, including
// its terminator.
const DefaultMaxDescriptorLength = 1024

// Composer turns the generated slots of a method into one tuple.
type Composer struct {
	MaxDescriptorLength int
}

// DescriptorLength is the length of the descriptor for signatures:
// the opening parenthesis, a tag and the signature per element, the closing
// parenthesis and the terminator.
func DescriptorLength(signatures []string) int {
	n := 1
	for _, sig := range signatures {
		n += 1 + len(sig)
	}
	return n + 2
}

func (c *Composer) maxLength() int {
	if c.MaxDescriptorLength <= 0 {
		return DefaultMaxDescriptorLength
	}
	return c.MaxDescriptorLength
}

// Descriptor builds the tuple descriptor of m, failing when it would not fit
// the configured maximum.
func (c *Composer) Descriptor(m *catalog.Method) (string, error) {
	sigs := m.Signatures()
	if n := DescriptorLength(sigs); n > c.maxLength() {
		return "", internalError(m.Name, "", errors.Wrapf(ErrFormatTooSmall, "need %d bytes, have %d", n, c.maxLength()))
	}
	return dbusvalue.Descriptor(sigs), nil
}

// Compose builds the call argument of m from its generated values. The
// returned tuple holds its own references to the element values, so the
// slots stay readable for logging after the call.
func (c *Composer) Compose(m *catalog.Method) (dbusvalue.Tuple, error) {
	desc, err := c.Descriptor(m)
	if err != nil {
		return dbusvalue.Tuple{}, err
	}
	values := m.Values()
	for i, v := range values {
		if v == nil {
			return dbusvalue.Tuple{}, internalError(m.Name, m.Slot(i).Signature, ErrNoValue)
		}
	}
	tuple, err := dbusvalue.NewTuple(desc, values...)
	if err != nil {
		return dbusvalue.Tuple{}, internalError(m.Name, "", err)
	}
	if err := owned(m, tuple); err != nil {
		return dbusvalue.Tuple{}, internalError(m.Name, "", err)
	}
	return tuple, nil
}

// owned verifies the tuple carries exactly the slot values, in order.
func owned(m *catalog.Method, t dbusvalue.Tuple) error {
	if t.Len() != m.ArgCount() {
		return errors.Wrapf(ErrUnstableOwnership, "tuple holds %d of %d arguments", t.Len(), m.ArgCount())
	}
	for i := 0; i < t.Len(); i++ {
		e, slot := t.At(i), m.Slot(i)
		// NaN doubles never compare equal, so compare renderings.
		if e.Signature() != slot.Signature || e.String() != slot.Value.String() {
			return errors.Wrapf(ErrUnstableOwnership, "element %d differs from its argument", i)
		}
	}
	return nil
}
