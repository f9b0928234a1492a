package artifact

import (
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busfuzz/busfuzz/catalog"
	"github.com/busfuzz/busfuzz/dbusvalue"
)

func methodWithValues(t *testing.T) *catalog.Method {
	m := catalog.NewMethod("Set/Name", true)
	values := []dbusvalue.Value{
		dbusvalue.String("abc"),
		dbusvalue.Int32(-42),
		dbusvalue.Uint64(math.MaxUint64),
		dbusvalue.Double(0.25),
		dbusvalue.Variant{Value: dbusvalue.String("inner")},
		dbusvalue.Boolean(true),
		dbusvalue.ObjectPath("/org/x"),
		dbusvalue.UnixFD(2),
	}
	for i, v := range values {
		require.NoError(t, m.AddArgument(v.Signature()))
		m.Slot(i).Value = v
	}
	return m
}

func TestSaveLoadReplayable(t *testing.T) {
	m := methodWithValues(t)
	c, err := NewCrash(m)
	require.NoError(t, err)
	c.BusName = "org.example.Service"
	c.Object = "/org/example"
	c.Interface = "org.example.Iface"
	c.Verdict = "VoidContractViolated"
	c.Code = 2

	store := NewStore(filepath.Join(t.TempDir(), "crashes"))
	path, err := store.Save(c)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "Set_Name-"))
	assert.True(t, strings.HasSuffix(path, ".cbor"))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.ID, loaded.ID)
	assert.Equal(t, "org.example.Service", loaded.BusName)
	assert.Equal(t, "/org/example", loaded.Object)
	assert.Equal(t, "org.example.Iface", loaded.Interface)
	assert.Equal(t, 2, loaded.Code)
	assert.True(t, loaded.Void)
	assert.WithinDuration(t, c.Time, loaded.Time, time.Second)

	replay, err := loaded.Rebuild()
	require.NoError(t, err)
	assert.Equal(t, m.Name, replay.Name)
	assert.Equal(t, m.Signatures(), replay.Signatures())
	assert.Equal(t, m.Values(), replay.Values())
}

func TestNewCrashNeedsValues(t *testing.T) {
	m := catalog.NewMethod("M", false)
	require.NoError(t, m.AddArgument("s"))
	_, err := NewCrash(m)
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cbor"))
	assert.Error(t, err)
}

func TestMethodRejectsBadValue(t *testing.T) {
	c := &Crash{Method: "M", Args: []Arg{{Signature: "y", Value: uint64(1000)}}}
	_, err := c.Rebuild()
	assert.ErrorIs(t, err, dbusvalue.ErrOutOfRange)
}
