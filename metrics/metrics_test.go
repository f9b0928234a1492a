package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busfuzz/busfuzz/fuzz"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveCall("Ping", fuzz.Success, 2*time.Millisecond)
	c.ObserveCall("Ping", fuzz.Success, 3*time.Millisecond)
	c.ObserveCall("Frob", fuzz.RemoteExceptionTolerated, time.Millisecond)
	c.ObserveVerdict(fuzz.Verdict{Method: "Ping", Outcome: fuzz.Success})
	c.ObserveVerdict(fuzz.Verdict{Method: "Reboot", Outcome: fuzz.Success, SkipReason: "access denied"})
	c.ObserveVerdict(fuzz.Verdict{Method: "Frob", Outcome: fuzz.TargetCrashed})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.calls.WithLabelValues("Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.calls.WithLabelValues("RemoteExceptionTolerated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.verdicts.WithLabelValues("Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.verdicts.WithLabelValues("Skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.verdicts.WithLabelValues("TargetCrashed")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.callDuration))
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveCall("Ping", fuzz.Success, time.Millisecond)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	log := zerolog.Nop()
	done := make(chan error, 1)
	go func() { done <- ServeMetrics(ctx, l, reg, &log) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `busfuzz_calls_total{outcome="Success"} 1`))

	cancel()
	assert.NoError(t, <-done)
}
