// Package dbusvalue models the elementary D-Bus values the fuzzer can send and
// the tuple that carries them as one call argument.
package dbusvalue

import (
	"fmt"
	"strconv"
)

// Elementary type codes.
const (
	TypeByte       = 'y'
	TypeBoolean    = 'b'
	TypeInt16      = 'n'
	TypeUint16     = 'q'
	TypeInt32      = 'i'
	TypeUint32     = 'u'
	TypeInt64      = 'x'
	TypeUint64     = 't'
	TypeDouble     = 'd'
	TypeString     = 's'
	TypeObjectPath = 'o'
	TypeSignature  = 'g'
	TypeVariant    = 'v'
	TypeUnixFD     = 'h'
)

// ElementaryCodes lists every single-character signature the fuzzer supports.
const ElementaryCodes = "ybnqiuxtdsogvh"

// IsElementary reports whether sig is a single supported type code.
func IsElementary(sig string) bool {
	if len(sig) != 1 {
		return false
	}
	for i := 0; i < len(ElementaryCodes); i++ {
		if ElementaryCodes[i] == sig[0] {
			return true
		}
	}
	return false
}

// IsCompound reports whether sig describes a container type (array, struct,
// dictionary entry ...), which the fuzzer does not generate.
func IsCompound(sig string) bool {
	return len(sig) > 1
}

// IsStringLike reports whether values of sig carry text whose length the
// generator can vary.
func IsStringLike(sig string) bool {
	if len(sig) != 1 {
		return false
	}
	switch sig[0] {
	case TypeString, TypeObjectPath, TypeSignature, TypeVariant:
		return true
	}
	return false
}

// Value is one typed D-Bus value. The set of implementations is closed.
type Value interface {
	// Signature returns the D-Bus type signature of the value.
	Signature() string
	// String renders the value for humans.
	String() string
	isValue()
}

type (
	Byte       uint8
	Boolean    bool
	Int16      int16
	Uint16     uint16
	Int32      int32
	Uint32     uint32
	Int64      int64
	Uint64     uint64
	Double     float64
	String     string
	ObjectPath string
	Signature  string
	UnixFD     int32
)

// Variant wraps another value behind the 'v' type.
type Variant struct {
	Value Value
}

func (Byte) Signature() string       { return "y" }
func (Boolean) Signature() string    { return "b" }
func (Int16) Signature() string      { return "n" }
func (Uint16) Signature() string     { return "q" }
func (Int32) Signature() string      { return "i" }
func (Uint32) Signature() string     { return "u" }
func (Int64) Signature() string      { return "x" }
func (Uint64) Signature() string     { return "t" }
func (Double) Signature() string     { return "d" }
func (String) Signature() string     { return "s" }
func (ObjectPath) Signature() string { return "o" }
func (Signature) Signature() string  { return "g" }
func (UnixFD) Signature() string     { return "h" }
func (Variant) Signature() string    { return "v" }

func (v Byte) String() string       { return strconv.FormatUint(uint64(v), 10) }
func (v Boolean) String() string    { return strconv.FormatBool(bool(v)) }
func (v Int16) String() string      { return strconv.FormatInt(int64(v), 10) }
func (v Uint16) String() string     { return strconv.FormatUint(uint64(v), 10) }
func (v Int32) String() string      { return strconv.FormatInt(int64(v), 10) }
func (v Uint32) String() string     { return strconv.FormatUint(uint64(v), 10) }
func (v Int64) String() string      { return strconv.FormatInt(int64(v), 10) }
func (v Uint64) String() string     { return strconv.FormatUint(uint64(v), 10) }
func (v Double) String() string     { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v String) String() string     { return string(v) }
func (v ObjectPath) String() string { return string(v) }
func (v Signature) String() string  { return string(v) }
func (v UnixFD) String() string     { return strconv.FormatInt(int64(v), 10) }

func (v Variant) String() string {
	if v.Value == nil {
		return "<@? nil>"
	}
	return fmt.Sprintf("<@%s %s>", v.Value.Signature(), v.Value.String())
}

func (Byte) isValue()       {}
func (Boolean) isValue()    {}
func (Int16) isValue()      {}
func (Uint16) isValue()     {}
func (Int32) isValue()      {}
func (Uint32) isValue()     {}
func (Int64) isValue()      {}
func (Uint64) isValue()     {}
func (Double) isValue()     {}
func (String) isValue()     {}
func (ObjectPath) isValue() {}
func (Signature) isValue()  {}
func (UnixFD) isValue()     {}
func (Variant) isValue()    {}
func (Tuple) isValue()      {}

// Text returns the textual content of string-like values. Variants are
// unwrapped recursively until a string-like value is found.
func Text(v Value) (string, bool) {
	switch t := v.(type) {
	case String:
		return string(t), true
	case ObjectPath:
		return string(t), true
	case Signature:
		return string(t), true
	case Variant:
		if t.Value == nil {
			return "", false
		}
		return Text(t.Value)
	}
	return "", false
}
