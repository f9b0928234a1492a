package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEnd(t *testing.T) {
	m := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "TestCallLatencyWithoutMeasurement",
			Name:      "Latency",
			Buckets:   prometheus.LinearBuckets(0, 50, 100),
		},
		[]string{"key"},
	)
	timer := NewTimer(m, time.Millisecond, "key")
	assert.Equal(t, time.Duration(0), timer.End("dne"))
	timer.Start("test")
	time.Sleep(time.Millisecond)
	assert.NotEqual(t, time.Duration(0), timer.End("test"))
	assert.Equal(t, time.Duration(0), timer.End("test"))
}

func TestEndAndObserve(t *testing.T) {
	m := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "observed", Buckets: prometheus.LinearBuckets(0, 1, 3)},
		[]string{"key"},
	)
	timer := NewTimer(m, time.Second, "key")
	timer.Start("org.example.Iface")
	timer.EndAndObserve("org.example.Iface")
	assert.Equal(t, 1, testutil.CollectAndCount(m))
}
