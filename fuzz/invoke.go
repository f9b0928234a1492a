package fuzz

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/busfuzz/busfuzz/catalog"
	"github.com/busfuzz/busfuzz/dbusvalue"
)

// DefaultTimeoutBackoff is the pause after a timed out call. Large inputs can
// legitimately keep the peer busy for a while.
const DefaultTimeoutBackoff = 10 * time.Second

// EmptyResponse is the signature of a reply without data.
const EmptyResponse = "()"

// Response is a successful reply of the remote peer.
type Response struct {
	// Signature of the reply body, in tuple form: "()" for no data.
	Signature string
}

// Proxy sends one method call to the object under test. Remote error replies
// are returned as *RemoteError.
type Proxy interface {
	Call(ctx context.Context, method string, args dbusvalue.Tuple) (Response, error)
}

// Invocation is the classified result of one call.
type Invocation struct {
	Outcome Outcome
	// Skip is set when the remote refused the call in a way that makes
	// further testing of the method pointless or unfair.
	Skip   bool
	Reason string
	// Remote is the error reply of the peer, if any.
	Remote *RemoteError
	// Signature of the reply, set when the peer answered.
	Signature string
	Duration  time.Duration
}

// Controller performs calls and classifies their results.
type Controller struct {
	Proxy Proxy
	// TimeoutBackoff is slept after a timed out call; zero selects
	// DefaultTimeoutBackoff.
	TimeoutBackoff time.Duration
	Log            *zerolog.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

func NewController(proxy Proxy, backoff time.Duration, log *zerolog.Logger) *Controller {
	if backoff <= 0 {
		backoff = DefaultTimeoutBackoff
	}
	return &Controller{
		Proxy:          proxy,
		TimeoutBackoff: backoff,
		Log:            log,
		sleep:          time.Sleep,
		now:            time.Now,
	}
}

// Invoke calls m with args and classifies the result. Tolerated remote
// exceptions are counted on the session. A non-remote error from the proxy
// means the call could not be sent at all and is returned as is.
func (c *Controller) Invoke(ctx context.Context, s *Session, m *catalog.Method, args dbusvalue.Tuple) (Invocation, error) {
	now := c.now
	if now == nil {
		now = time.Now
	}
	start := now()
	resp, err := c.Proxy.Call(ctx, m.Name, args)
	inv := Invocation{Duration: now().Sub(start)}

	if err != nil {
		var remote *RemoteError
		if !errors.As(err, &remote) {
			return inv, internalError(m.Name, "", errors.Wrap(err, "call failed"))
		}
		inv.Remote = remote
		c.classifyRemote(s, m, &inv)
		return inv, nil
	}

	inv.Signature = resp.Signature
	if m.Void && resp.Signature != EmptyResponse {
		c.logger().Debug().Str("method", m.Name).Str("signature", resp.Signature).Msg("void method returned data")
		inv.Outcome = VoidContractViolated
		return inv, nil
	}
	inv.Outcome = Success
	return inv, nil
}

func (c *Controller) classifyRemote(s *Session, m *catalog.Method, inv *Invocation) {
	remote := inv.Remote
	switch remote.Name {
	case ErrorNoReply:
		inv.Outcome = RemoteNoReplyOrTimeout
		return
	case ErrorTimeout:
		c.logger().Debug().Str("method", m.Name).Dur("backoff", c.TimeoutBackoff).Msg("call timed out, backing off")
		c.backoff()
		inv.Outcome = RemoteNoReplyOrTimeout
		return
	case ErrorAccessDenied, ErrorAuthFailed:
		inv.Outcome = RemoteExceptionTolerated
		inv.Skip = true
		inv.Reason = "access denied"
		return
	}

	inv.Outcome = RemoteExceptionTolerated
	if strings.Contains(remote.Message, "Timeout") {
		inv.Skip = true
		inv.Reason = "timeout"
		return
	}
	s.RecordException()
	c.logger().Debug().Str("method", m.Name).Str("error", remote.Error()).Int("exceptions", s.Exceptions()).Msg("remote exception")
}

func (c *Controller) backoff() {
	d := c.TimeoutBackoff
	if d <= 0 {
		d = DefaultTimeoutBackoff
	}
	if c.sleep == nil {
		time.Sleep(d)
		return
	}
	c.sleep(d)
}

func (c *Controller) logger() *zerolog.Logger {
	if c.Log == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return c.Log
}
