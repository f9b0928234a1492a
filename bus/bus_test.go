package bus

import (
	"context"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busfuzz/busfuzz/dbusvalue"
	"github.com/busfuzz/busfuzz/fuzz"
)

const serviceXML = `<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
  <interface name="org.freedesktop.DBus.Introspectable">
    <method name="Introspect">
      <arg name="data" type="s" direction="out"/>
    </method>
  </interface>
  <interface name="org.freedesktop.DBus.Properties">
    <method name="Get">
      <arg name="interface" type="s" direction="in"/>
      <arg name="name" type="s" direction="in"/>
      <arg name="value" type="v" direction="out"/>
    </method>
  </interface>
  <interface name="org.example.Service">
    <method name="Ping"/>
    <method name="SetName">
      <arg name="name" type="s" direction="in"/>
      <arg name="flags" type="u"/>
    </method>
    <method name="Lookup">
      <arg name="key" type="s" direction="in"/>
      <arg name="value" type="a{sv}" direction="out"/>
    </method>
    <signal name="Changed">
      <arg name="what" type="s"/>
    </signal>
  </interface>
  <node name="child"/>
  <node name="other"/>
</node>`

func TestMethodsFromIntrospection(t *testing.T) {
	node, err := ParseNode(serviceXML)
	require.NoError(t, err)
	assert.Len(t, node.Children, 2)

	ifaces := Methods(node, Filter{})
	require.Len(t, ifaces, 1)
	assert.Equal(t, "org.example.Service", ifaces[0].Name)
	assert.Equal(t, []MethodInfo{
		{Interface: "org.example.Service", Name: "Ping", Void: true},
		{Interface: "org.example.Service", Name: "SetName", In: []string{"s", "u"}, Void: true},
		{Interface: "org.example.Service", Name: "Lookup", In: []string{"s"}, Void: false},
	}, ifaces[0].Methods)
}

func TestMethodsFilter(t *testing.T) {
	node, err := ParseNode(serviceXML)
	require.NoError(t, err)

	ifaces := Methods(node, Filter{Interface: "org.freedesktop.DBus.Properties"})
	require.Len(t, ifaces, 1)
	assert.Equal(t, "Get", ifaces[0].Methods[0].Name)

	ifaces = Methods(node, Filter{Method: "Lookup"})
	require.Len(t, ifaces, 1)
	require.Len(t, ifaces[0].Methods, 1)
	assert.Equal(t, "Lookup", ifaces[0].Methods[0].Name)

	assert.Empty(t, Methods(node, Filter{Interface: "org.example.Missing"}))
}

// fakeObject answers every call with body, or fails it with err.
type fakeObject struct {
	dbus.BusObject
	path    dbus.ObjectPath
	body    []interface{}
	err     error
	methods []string
	args    [][]interface{}
}

func (o *fakeObject) CallWithContext(ctx context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	o.methods = append(o.methods, method)
	o.args = append(o.args, args)
	if err := ctx.Err(); err != nil {
		return &dbus.Call{Err: err}
	}
	if o.err != nil {
		return &dbus.Call{Err: o.err}
	}
	return &dbus.Call{Body: o.body}
}

func (o *fakeObject) Path() dbus.ObjectPath {
	return o.path
}

func TestIntrospectObject(t *testing.T) {
	obj := &fakeObject{path: "/org/example", body: []interface{}{serviceXML}}

	node, err := introspectObject(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, "/org/example", node.Name)
	assert.Len(t, node.Children, 2)
	assert.Equal(t, []string{introspectMethod}, obj.methods)
}

func TestIntrospectObjectCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := introspectObject(ctx, &fakeObject{path: "/org/example", body: []interface{}{serviceXML}})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestProxyCall(t *testing.T) {
	obj := &fakeObject{path: "/org/example", body: []interface{}{"ok", uint32(1)}}
	proxy := NewProxy(obj, "org.example.Service")
	args, err := dbusvalue.NewTuple("(@s@u)", dbusvalue.String("name"), dbusvalue.Uint32(7))
	require.NoError(t, err)

	resp, err := proxy.Call(context.Background(), "SetName", args)
	require.NoError(t, err)
	assert.Equal(t, "(su)", resp.Signature)
	assert.Equal(t, []string{"org.example.Service.SetName"}, obj.methods)
	assert.Equal(t, []interface{}{"name", uint32(7)}, obj.args[0])
}

func TestProxyCallRemoteError(t *testing.T) {
	obj := &fakeObject{path: "/org/example", err: dbus.Error{Name: fuzz.ErrorAccessDenied, Body: []interface{}{"denied"}}}
	args, err := dbusvalue.NewTuple("()")
	require.NoError(t, err)

	_, err = NewProxy(obj, "org.example.Service").Call(context.Background(), "Ping", args)
	var remote *fuzz.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, &fuzz.RemoteError{Name: fuzz.ErrorAccessDenied, Message: "denied"}, remote)

	obj.err = errors.New("dbus: connection closed by user")
	_, err = NewProxy(obj, "org.example.Service").Call(context.Background(), "Ping", args)
	require.Error(t, err)
	assert.False(t, errors.As(err, &remote))
}

func TestParseNodeInvalid(t *testing.T) {
	_, err := ParseNode("<node><interface>")
	assert.Error(t, err)
}

func TestMethodInfoCatalog(t *testing.T) {
	m, err := MethodInfo{Name: "SetName", In: []string{"s", "u"}, Void: true}.Catalog()
	require.NoError(t, err)
	assert.Equal(t, "SetName(s, u)", m.String())
	assert.True(t, m.Void)
	assert.True(t, m.VariableLength)

	_, err = MethodInfo{Name: "Broken", In: []string{""}}.Catalog()
	assert.Error(t, err)
}

func TestChildPath(t *testing.T) {
	assert.Equal(t, "/child", childPath("/", "child"))
	assert.Equal(t, "/org/example/child", childPath("/org/example", "child"))
	assert.Equal(t, "/abs/path", childPath("/org", "/abs/path"))
}

func TestBodyTypes(t *testing.T) {
	tuple, err := dbusvalue.NewTuple("(@y@b@n@q@i@u@x@t@d@s@o@g@h@v)",
		dbusvalue.Byte(1), dbusvalue.Boolean(true), dbusvalue.Int16(-2), dbusvalue.Uint16(3),
		dbusvalue.Int32(-4), dbusvalue.Uint32(5), dbusvalue.Int64(-6), dbusvalue.Uint64(7),
		dbusvalue.Double(1.5), dbusvalue.String("abc"), dbusvalue.ObjectPath("/a"),
		dbusvalue.Signature("ai"), dbusvalue.UnixFD(1), dbusvalue.Variant{Value: dbusvalue.String("in")},
	)
	require.NoError(t, err)

	body, err := Body(tuple)
	require.NoError(t, err)
	assert.Equal(t, "ybnqiuxtdsoghv", dbus.SignatureOf(body...).String())
	assert.Equal(t, dbus.MakeVariant("in"), body[13])
}

func TestBodyInvalidSignatureValue(t *testing.T) {
	tuple, err := dbusvalue.NewTuple("(@g)", dbusvalue.Signature("a"))
	require.NoError(t, err)
	_, err = Body(tuple)
	assert.Error(t, err)
}

func TestReplySignature(t *testing.T) {
	assert.Equal(t, fuzz.EmptyResponse, ReplySignature(nil))
	assert.Equal(t, "(su)", ReplySignature([]interface{}{"x", uint32(1)}))
}

func TestRemoteError(t *testing.T) {
	e, ok := remoteError(dbus.Error{Name: fuzz.ErrorNoReply, Body: []interface{}{"did not receive a reply"}})
	require.True(t, ok)
	assert.Equal(t, &fuzz.RemoteError{Name: fuzz.ErrorNoReply, Message: "did not receive a reply"}, e)

	e, ok = remoteError(&dbus.Error{Name: fuzz.ErrorAccessDenied})
	require.True(t, ok)
	assert.Equal(t, fuzz.ErrorAccessDenied, e.Name)
	assert.Empty(t, e.Message)

	_, ok = remoteError(errors.New("dbus: connection closed by user"))
	assert.False(t, ok)
}

func TestNameNotOwned(t *testing.T) {
	assert.True(t, nameNotOwned(dbus.Error{Name: errorNameHasNoOwner}))
	assert.False(t, nameNotOwned(dbus.Error{Name: fuzz.ErrorAccessDenied}))
	assert.False(t, nameNotOwned(errors.New("eof")))
}

func TestConnectUnknownBus(t *testing.T) {
	_, err := Connect("starter", "")
	assert.True(t, errors.Is(err, ErrUnknownBus))
}
