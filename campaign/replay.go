package campaign

import (
	"context"

	"github.com/busfuzz/busfuzz/artifact"
	"github.com/busfuzz/busfuzz/fuzz"
)

// Replay sends the stored input of crash once to the object and interface it
// was recorded on.
func (c *Campaign) Replay(ctx context.Context, crash *artifact.Crash) (fuzz.Verdict, error) {
	log := c.log.With().Str("busName", crash.BusName).Str("crash", crash.ID.String()).Logger()

	m, err := crash.Rebuild()
	if err != nil {
		return fuzz.Verdict{}, err
	}
	pid := 0
	if c.Liveness != nil {
		if pid, err = c.bus.PID(ctx); err != nil {
			m.Release()
			return fuzz.Verdict{}, err
		}
	}

	loop := c.newLoop(fuzz.Target{
		Bus:        c.cfg.Bus,
		BusAddress: c.cfg.BusAddress,
		BusName:    crash.BusName,
		Object:     crash.Object,
		Interface:  crash.Interface,
		PID:        pid,
	}, c.newGenerator(), &log)
	log.Info().Str("method", m.String()).Str("recorded", crash.Verdict).Msg("replaying stored input")
	v := loop.Replay(ctx, m)
	if c.Metrics != nil {
		c.Metrics.ObserveVerdict(v)
	}
	return v, nil
}
