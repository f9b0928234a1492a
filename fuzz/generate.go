package fuzz

import (
	"github.com/pkg/errors"

	"github.com/busfuzz/busfuzz/catalog"
	"github.com/busfuzz/busfuzz/dbusvalue"
	"github.com/busfuzz/busfuzz/generator"
)

// Engine fills the argument slots of a method with random values.
type Engine struct {
	Generator generator.Generator
	// MaxLength bounds the byte length of generated string-like values.
	MaxLength int
}

// Generate replaces the value of every slot of m. It returns false, without
// an error, when m has a compound argument; the offending signature is then
// flagged on the session and no slot keeps a value.
func (e *Engine) Generate(s *Session, m *catalog.Method) (bool, error) {
	if s.Unsupported() {
		return false, nil
	}
	for i := 0; i < m.ArgCount(); i++ {
		slot := m.Slot(i)
		slot.Value = nil

		switch {
		case slot.Signature == "":
			m.ClearValues()
			return false, internalError(m.Name, "", errors.Errorf("argument %d has no signature", i))
		case dbusvalue.IsCompound(slot.Signature):
			m.ClearValues()
			s.flagUnsupported(slot.Signature)
			return false, nil
		case !dbusvalue.IsElementary(slot.Signature):
			m.ClearValues()
			return false, internalError(m.Name, slot.Signature, ErrUnknownSignature)
		}

		v, err := e.Generator.Next(slot.Signature[0], e.MaxLength)
		if err != nil {
			m.ClearValues()
			return false, internalError(m.Name, slot.Signature, errors.Wrapf(ErrNoValue, "%v", err))
		}
		if v == nil || v.Signature() != slot.Signature {
			m.ClearValues()
			return false, internalError(m.Name, slot.Signature, ErrNoValue)
		}
		slot.Value = v
	}
	return true, nil
}
