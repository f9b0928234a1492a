// Package artifact stores the inputs that made a method fail so they can be
// replayed against the target.
package artifact

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/busfuzz/busfuzz/catalog"
	"github.com/busfuzz/busfuzz/dbusvalue"
)

const (
	fileExtension = ".cbor"
	dirPermMode   = 0744
	filePermMode  = 0644
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Arg is one typed argument value. Inner is the signature of the value held
// by a variant.
type Arg struct {
	Signature string      `cbor:"sig"`
	Inner     string      `cbor:"inner,omitempty"`
	Value     interface{} `cbor:"val"`
}

// Crash is everything needed to resend one failing call.
type Crash struct {
	ID        uuid.UUID `cbor:"id"`
	Time      time.Time `cbor:"time"`
	BusName   string    `cbor:"bus"`
	Object    string    `cbor:"object"`
	Interface string    `cbor:"interface"`
	Method    string    `cbor:"method"`
	Void      bool      `cbor:"void"`
	Args      []Arg     `cbor:"args"`
	Verdict   string    `cbor:"verdict"`
	Code      int       `cbor:"code"`
}

// NewCrash captures the current values of m.
func NewCrash(m *catalog.Method) (*Crash, error) {
	c := &Crash{
		ID:     uuid.New(),
		Time:   time.Now().UTC(),
		Method: m.Name,
		Void:   m.Void,
	}
	for i := 0; i < m.ArgCount(); i++ {
		slot := m.Slot(i)
		if slot.Value == nil {
			return nil, errors.Errorf("argument %d (%s) of %s has no value", i, slot.Signature, m.Name)
		}
		arg := Arg{Signature: slot.Signature}
		v := slot.Value
		if variant, ok := v.(dbusvalue.Variant); ok {
			if variant.Value == nil {
				return nil, errors.Errorf("argument %d of %s is an empty variant", i, m.Name)
			}
			if _, nested := variant.Value.(dbusvalue.Variant); nested {
				return nil, errors.Errorf("argument %d of %s nests variants", i, m.Name)
			}
			arg.Inner = variant.Value.Signature()
			v = variant.Value
		}
		arg.Value = dbusvalue.Native(v)
		c.Args = append(c.Args, arg)
	}
	return c, nil
}

// Rebuild recreates the method under test with the recorded values in place.
func (c *Crash) Rebuild() (*catalog.Method, error) {
	m := catalog.NewMethod(c.Method, c.Void)
	for i, arg := range c.Args {
		if err := m.AddArgument(arg.Signature); err != nil {
			m.Release()
			return nil, err
		}
		var (
			v   dbusvalue.Value
			err error
		)
		if arg.Signature == string(dbusvalue.TypeVariant) {
			v, err = dbusvalue.NewVariant(arg.Inner, arg.Value)
		} else {
			v, err = dbusvalue.FromNative(arg.Signature, arg.Value)
		}
		if err != nil {
			m.Release()
			return nil, errors.Wrapf(err, "argument %d of %s", i, c.Method)
		}
		m.Slot(i).Value = v
	}
	return m, nil
}

// Store writes crashes below Dir.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Save writes c as <method>-<id>.cbor and returns the path.
func (s *Store) Save(c *Crash) (string, error) {
	if err := os.MkdirAll(s.Dir, dirPermMode); err != nil {
		return "", errors.Wrapf(err, "unable to create crash directory %s", s.Dir)
	}
	data, err := cbor.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "cannot encode crash")
	}
	name := unsafeName.ReplaceAllString(c.Method, "_") + "-" + c.ID.String() + fileExtension
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, filePermMode); err != nil {
		return "", errors.Wrapf(err, "cannot write crash %s", path)
	}
	return path, nil
}

// Load reads a crash written by Save.
func Load(path string) (*Crash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read crash %s", path)
	}
	var c Crash
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "cannot decode crash %s", path)
	}
	return &c, nil
}
