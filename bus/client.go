package bus

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/busfuzz/busfuzz/dbusvalue"
	"github.com/busfuzz/busfuzz/fuzz"
	"github.com/busfuzz/busfuzz/retry"
)

const (
	System  = fuzz.DefaultBus
	Session = "session"

	errorNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"
	getPIDMethod        = "org.freedesktop.DBus.GetConnectionUnixProcessID"

	// DefaultPIDRetries bounds the lookups of a bus name that is not owned yet.
	DefaultPIDRetries = 5
	pidBackoffBase    = 200 * time.Millisecond
)

var ErrUnknownBus = errors.New("unknown bus, expected system or session")

// Connect opens a private connection to the bus at address or, when address
// is empty, to the well known bus of the given kind.
func Connect(kind, address string) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch {
	case address != "":
		conn, err = dbus.Connect(address)
	case kind == System || kind == "":
		conn, err = dbus.ConnectSystemBus()
	case kind == Session:
		conn, err = dbus.ConnectSessionBus()
	default:
		return nil, errors.Wrapf(ErrUnknownBus, "bus %q", kind)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to bus")
	}
	return conn, nil
}

// Client talks to the objects of one bus name.
type Client struct {
	conn *dbus.Conn
	dest string
	log  *zerolog.Logger

	// PIDRetries is the number of extra PID lookups while the name has no
	// owner.
	PIDRetries uint
}

func NewClient(conn *dbus.Conn, dest string, log *zerolog.Logger) *Client {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Client{conn: conn, dest: dest, log: log, PIDRetries: DefaultPIDRetries}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Proxy returns a proxy calling methods of iface on the object at path.
func (c *Client) Proxy(path, iface string) fuzz.Proxy {
	return NewProxy(c.conn.Object(c.dest, dbus.ObjectPath(path)), iface)
}

// PID resolves the process owning the bus name.
func (c *Client) PID(ctx context.Context) (int, error) {
	backoff := retry.NewBackoff(c.PIDRetries, pidBackoffBase)
	var pid uint32
	err := retry.Do(ctx, &backoff, func() (bool, error) {
		call := c.conn.BusObject().CallWithContext(ctx, getPIDMethod, 0, c.dest)
		if call.Err != nil {
			retryable := nameNotOwned(call.Err)
			if retryable {
				c.log.Debug().Str("name", c.dest).Int("retry", backoff.Retries()).Msg("bus name has no owner yet")
			}
			return retryable, call.Err
		}
		return false, call.Store(&pid)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "cannot get pid of %s", c.dest)
	}
	return int(pid), nil
}

func nameNotOwned(err error) bool {
	remote, ok := remoteError(err)
	return ok && remote.Name == errorNameHasNoOwner
}

// Proxy sends calls to one interface of one object.
type Proxy struct {
	obj   dbus.BusObject
	iface string
}

func NewProxy(obj dbus.BusObject, iface string) *Proxy {
	return &Proxy{obj: obj, iface: iface}
}

// Call invokes method synchronously. Error replies of the peer are returned
// as *fuzz.RemoteError; anything else means the call could not be made.
func (p *Proxy) Call(ctx context.Context, method string, args dbusvalue.Tuple) (fuzz.Response, error) {
	body, err := Body(args)
	if err != nil {
		return fuzz.Response{}, err
	}
	call := p.obj.CallWithContext(ctx, p.iface+"."+method, 0, body...)
	if call.Err != nil {
		if remote, ok := remoteError(call.Err); ok {
			return fuzz.Response{}, remote
		}
		return fuzz.Response{}, errors.Wrapf(call.Err, "call %s.%s", p.iface, method)
	}
	return fuzz.Response{Signature: ReplySignature(call.Body)}, nil
}
