package bus

import (
	"context"
	"encoding/xml"
	"path"
	"sort"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/pkg/errors"

	"github.com/busfuzz/busfuzz/catalog"
)

const (
	directionOut     = "out"
	introspectMethod = "org.freedesktop.DBus.Introspectable.Introspect"
)

// Interfaces every object implements; they are only tested when asked for
// explicitly.
var standardInterfaces = map[string]bool{
	"org.freedesktop.DBus.Introspectable": true,
	"org.freedesktop.DBus.Peer":           true,
	"org.freedesktop.DBus.Properties":     true,
}

// IsStandardInterface reports whether name is one of the interfaces provided
// by the bus library of every peer.
func IsStandardInterface(name string) bool {
	return standardInterfaces[name]
}

// MethodInfo is a method as declared by introspection data.
type MethodInfo struct {
	Interface string
	Name      string
	// In are the signatures of the input arguments, in order.
	In   []string
	Void bool
}

// Catalog builds the method under test.
func (m MethodInfo) Catalog() (*catalog.Method, error) {
	method := catalog.NewMethod(m.Name, m.Void)
	for _, sig := range m.In {
		if err := method.AddArgument(sig); err != nil {
			method.Release()
			return nil, err
		}
	}
	return method, nil
}

// Object is an introspected object path.
type Object struct {
	Path       string
	Interfaces []InterfaceInfo
}

type InterfaceInfo struct {
	Name    string
	Methods []MethodInfo
}

// Filter selects what gets tested. Empty fields match everything.
type Filter struct {
	Interface string
	Method    string
}

func (f Filter) interfaceAllowed(name string) bool {
	if f.Interface != "" {
		return name == f.Interface
	}
	return !IsStandardInterface(name)
}

func (f Filter) methodAllowed(name string) bool {
	return f.Method == "" || f.Method == name
}

// Methods lists the methods of node selected by f, in declaration order.
func Methods(node *introspect.Node, f Filter) []InterfaceInfo {
	var out []InterfaceInfo
	for _, iface := range node.Interfaces {
		if !f.interfaceAllowed(iface.Name) {
			continue
		}
		info := InterfaceInfo{Name: iface.Name}
		for _, m := range iface.Methods {
			if !f.methodAllowed(m.Name) {
				continue
			}
			method := MethodInfo{Interface: iface.Name, Name: m.Name, Void: true}
			for _, arg := range m.Args {
				if arg.Direction == directionOut {
					method.Void = false
					continue
				}
				method.In = append(method.In, arg.Type)
			}
			info.Methods = append(info.Methods, method)
		}
		if len(info.Methods) > 0 {
			out = append(out, info)
		}
	}
	return out
}

// childPath joins the path of a parent node and the relative name of a child.
func childPath(parent, child string) string {
	if path.IsAbs(child) {
		return child
	}
	return path.Join(parent, child)
}

// ParseNode decodes an introspection document.
func ParseNode(data string) (*introspect.Node, error) {
	var node introspect.Node
	if err := xml.Unmarshal([]byte(data), &node); err != nil {
		return nil, errors.Wrap(err, "cannot decode introspection data")
	}
	return &node, nil
}

// Introspect reads the introspection data of the object at objPath.
func (c *Client) Introspect(ctx context.Context, objPath string) (*introspect.Node, error) {
	return introspectObject(ctx, c.conn.Object(c.dest, dbus.ObjectPath(objPath)))
}

// introspectObject does what introspect.Call does, bounded by ctx so that a
// walk over a hanging service can be interrupted.
func introspectObject(ctx context.Context, obj dbus.BusObject) (*introspect.Node, error) {
	var data string
	err := obj.CallWithContext(ctx, introspectMethod, 0).Store(&data)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot introspect %s", obj.Path())
	}
	node, err := ParseNode(data)
	if err != nil {
		return nil, err
	}
	if node.Name == "" {
		node.Name = string(obj.Path())
	}
	return node, nil
}

// Object introspects the single object at objPath.
func (c *Client) Object(ctx context.Context, objPath string, f Filter) (Object, error) {
	if !dbus.ObjectPath(objPath).IsValid() {
		return Object{}, errors.Errorf("invalid object path %q", objPath)
	}
	node, err := c.Introspect(ctx, objPath)
	if err != nil {
		return Object{}, err
	}
	return Object{Path: objPath, Interfaces: Methods(node, f)}, nil
}

// Objects walks the object tree below root and returns every object with at
// least one selected method, sorted by path. Objects that cannot be
// introspected are logged and skipped.
func (c *Client) Objects(ctx context.Context, root string, f Filter) ([]Object, error) {
	if root == "" {
		root = "/"
	}
	if !dbus.ObjectPath(root).IsValid() {
		return nil, errors.Errorf("invalid object path %q", root)
	}
	var objects []Object
	seen := map[string]bool{}
	err := c.walk(ctx, root, f, seen, &objects, true)
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, err
}

func (c *Client) walk(ctx context.Context, objPath string, f Filter, seen map[string]bool, out *[]Object, top bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if seen[objPath] {
		return nil
	}
	seen[objPath] = true

	node, err := c.Introspect(ctx, objPath)
	if err != nil {
		if top {
			return err
		}
		c.log.Warn().Err(err).Str("object", objPath).Msg("skipping object")
		return nil
	}
	if ifaces := Methods(node, f); len(ifaces) > 0 {
		*out = append(*out, Object{Path: objPath, Interfaces: ifaces})
	}
	for _, child := range node.Children {
		if child.Name == "" {
			continue
		}
		if err := c.walk(ctx, childPath(objPath, child.Name), f, seen, out, false); err != nil {
			return err
		}
	}
	return nil
}
