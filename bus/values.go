// Package bus connects the fuzz loop to a real D-Bus peer.
package bus

import (
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/busfuzz/busfuzz/dbusvalue"
	"github.com/busfuzz/busfuzz/fuzz"
)

// Body converts a composed tuple into the body of a method call, one element
// per declared argument.
func Body(t dbusvalue.Tuple) ([]interface{}, error) {
	body := make([]interface{}, t.Len())
	for i := 0; i < t.Len(); i++ {
		v, err := wire(t.At(i))
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		body[i] = v
	}
	return body, nil
}

// wire maps a value onto the Go type godbus encodes with the same signature.
func wire(v dbusvalue.Value) (interface{}, error) {
	switch t := v.(type) {
	case dbusvalue.Byte:
		return byte(t), nil
	case dbusvalue.Boolean:
		return bool(t), nil
	case dbusvalue.Int16:
		return int16(t), nil
	case dbusvalue.Uint16:
		return uint16(t), nil
	case dbusvalue.Int32:
		return int32(t), nil
	case dbusvalue.Uint32:
		return uint32(t), nil
	case dbusvalue.Int64:
		return int64(t), nil
	case dbusvalue.Uint64:
		return uint64(t), nil
	case dbusvalue.Double:
		return float64(t), nil
	case dbusvalue.String:
		return string(t), nil
	case dbusvalue.ObjectPath:
		return dbus.ObjectPath(t), nil
	case dbusvalue.Signature:
		sig, err := dbus.ParseSignature(string(t))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid signature value %q", string(t))
		}
		return sig, nil
	case dbusvalue.UnixFD:
		return dbus.UnixFD(t), nil
	case dbusvalue.Variant:
		if t.Value == nil {
			return nil, errors.New("empty variant")
		}
		inner, err := wire(t.Value)
		if err != nil {
			return nil, err
		}
		return dbus.MakeVariant(inner), nil
	case nil:
		return nil, errors.New("missing value")
	default:
		return nil, errors.Errorf("cannot send value of signature %q", v.Signature())
	}
}

// ReplySignature renders the signature of a reply body in tuple form.
func ReplySignature(body []interface{}) string {
	return "(" + dbus.SignatureOf(body...).String() + ")"
}

// remoteError maps an error reply onto the fuzz taxonomy. ok is false when
// err is not an error reply of the peer.
func remoteError(err error) (*fuzz.RemoteError, bool) {
	var byValue dbus.Error
	if errors.As(err, &byValue) {
		return fromDBusError(byValue), true
	}
	var byPointer *dbus.Error
	if errors.As(err, &byPointer) && byPointer != nil {
		return fromDBusError(*byPointer), true
	}
	return nil, false
}

func fromDBusError(e dbus.Error) *fuzz.RemoteError {
	var parts []string
	for _, b := range e.Body {
		if s, ok := b.(string); ok {
			parts = append(parts, s)
		}
	}
	return &fuzz.RemoteError{Name: e.Name, Message: strings.Join(parts, " ")}
}
