package dbusvalue

import (
	"math"

	"github.com/pkg/errors"
)

// ErrOutOfRange is returned when a decoded number does not fit the type code.
var ErrOutOfRange = errors.New("value out of range for signature")

// Native returns the plain Go representation of v: integers, bool, float64
// or string. Variants are not flattened; see Variant.Value.
func Native(v Value) interface{} {
	switch t := v.(type) {
	case Byte:
		return uint64(t)
	case Boolean:
		return bool(t)
	case Int16:
		return int64(t)
	case Uint16:
		return uint64(t)
	case Int32:
		return int64(t)
	case Uint32:
		return uint64(t)
	case Int64:
		return int64(t)
	case Uint64:
		return uint64(t)
	case Double:
		return float64(t)
	case String:
		return string(t)
	case ObjectPath:
		return string(t)
	case Signature:
		return string(t)
	case UnixFD:
		return int64(t)
	}
	return nil
}

// FromNative rebuilds a typed value of the elementary signature sig from a
// plain Go value as produced by a generic decoder. Variants cannot be rebuilt
// here since the inner signature is not part of sig; use NewVariant.
func FromNative(sig string, raw interface{}) (Value, error) {
	if !IsElementary(sig) {
		return nil, errors.Errorf("signature %q is not elementary", sig)
	}
	switch sig[0] {
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, errors.Errorf("signature %q expects bool, got %T", sig, raw)
		}
		return Boolean(b), nil
	case TypeDouble:
		switch f := raw.(type) {
		case float64:
			return Double(f), nil
		case float32:
			return Double(f), nil
		}
		return nil, errors.Errorf("signature %q expects float, got %T", sig, raw)
	case TypeString, TypeObjectPath, TypeSignature:
		s, ok := raw.(string)
		if !ok {
			return nil, errors.Errorf("signature %q expects string, got %T", sig, raw)
		}
		switch sig[0] {
		case TypeObjectPath:
			return ObjectPath(s), nil
		case TypeSignature:
			return Signature(s), nil
		}
		return String(s), nil
	case TypeVariant:
		return nil, errors.New("variant values need an inner signature")
	}

	n, unsigned, err := integer(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "signature %q", sig)
	}
	if sig[0] == TypeUint64 {
		if unsigned {
			return Uint64(n.u), nil
		}
		if n.i < 0 {
			return nil, errors.Wrapf(ErrOutOfRange, "%d for %q", n.i, sig)
		}
		return Uint64(n.i), nil
	}
	lo, hi := bounds(sig[0])
	if unsigned {
		if n.u > uint64(hi) {
			return nil, errors.Wrapf(ErrOutOfRange, "%d for %q", n.u, sig)
		}
		n.i = int64(n.u)
	}
	if n.i < lo || n.i > hi {
		return nil, errors.Wrapf(ErrOutOfRange, "%d for %q", n.i, sig)
	}
	switch sig[0] {
	case TypeByte:
		return Byte(n.i), nil
	case TypeInt16:
		return Int16(n.i), nil
	case TypeUint16:
		return Uint16(n.i), nil
	case TypeInt32:
		return Int32(n.i), nil
	case TypeUint32:
		return Uint32(n.i), nil
	case TypeInt64:
		return Int64(n.i), nil
	case TypeUnixFD:
		return UnixFD(n.i), nil
	}
	return nil, errors.Errorf("unknown signature %q", sig)
}

// NewVariant wraps inner, rebuilt from its own signature, in a variant.
func NewVariant(innerSig string, raw interface{}) (Value, error) {
	inner, err := FromNative(innerSig, raw)
	if err != nil {
		return nil, errors.Wrap(err, "variant")
	}
	return Variant{Value: inner}, nil
}

type number struct {
	i int64
	u uint64
}

func integer(raw interface{}) (number, bool, error) {
	switch n := raw.(type) {
	case int:
		return number{i: int64(n)}, false, nil
	case int8:
		return number{i: int64(n)}, false, nil
	case int16:
		return number{i: int64(n)}, false, nil
	case int32:
		return number{i: int64(n)}, false, nil
	case int64:
		return number{i: n}, false, nil
	case uint:
		return number{u: uint64(n)}, true, nil
	case uint8:
		return number{u: uint64(n)}, true, nil
	case uint16:
		return number{u: uint64(n)}, true, nil
	case uint32:
		return number{u: uint64(n)}, true, nil
	case uint64:
		return number{u: n}, true, nil
	}
	return number{}, false, errors.Errorf("expected integer, got %T", raw)
}

func bounds(code byte) (int64, int64) {
	switch code {
	case TypeByte:
		return 0, math.MaxUint8
	case TypeInt16:
		return math.MinInt16, math.MaxInt16
	case TypeUint16:
		return 0, math.MaxUint16
	case TypeInt32, TypeUnixFD:
		return math.MinInt32, math.MaxInt32
	case TypeUint32:
		return 0, math.MaxUint32
	}
	return math.MinInt64, math.MaxInt64
}
