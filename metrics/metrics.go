package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/busfuzz/busfuzz/fuzz"
)

const (
	metricsNamespace = "busfuzz"

	outcomeLabel   = "outcome"
	verdictLabel   = "verdict"
	methodLabel    = "method"
	interfaceLabel = "interface"
)

// Collector counts calls and verdicts of a fuzz campaign.
type Collector struct {
	calls          *prometheus.CounterVec
	verdicts       *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	methodDuration *prometheus.HistogramVec
}

// NewCollector creates the campaign metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calls_total",
				Help:      "Number of fuzzed method calls by classified outcome",
			},
			[]string{outcomeLabel},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "method_verdicts_total",
				Help:      "Number of tested methods by verdict",
			},
			[]string{verdictLabel},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "call_duration_seconds",
				Help:      "Time until the tested process answered a call",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{methodLabel},
		),
		methodDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "method_duration_seconds",
				Help:      "Time spent testing one method",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{interfaceLabel},
		),
	}
	for _, collector := range []prometheus.Collector{c.calls, c.verdicts, c.callDuration, c.methodDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveCall records one sent call.
func (c *Collector) ObserveCall(method string, outcome fuzz.Outcome, d time.Duration) {
	c.calls.WithLabelValues(outcome.String()).Inc()
	c.callDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveVerdict records the verdict of one method.
func (c *Collector) ObserveVerdict(v fuzz.Verdict) {
	label := v.Outcome.String()
	if v.Skipped() && v.Outcome == fuzz.Success {
		label = "Skipped"
	}
	c.verdicts.WithLabelValues(label).Inc()
}

// MethodTimer measures the duration of method tests per interface.
func (c *Collector) MethodTimer() *Timer {
	return NewTimer(c.methodDuration, time.Second, interfaceLabel)
}

func RegisterBuildInfo(reg prometheus.Registerer, buildTime string, version string) {
	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			// Don't namespace build_info, since we want it to be consistent across all services
			Name: "build_info",
			Help: "Build and version information",
		},
		[]string{"goversion", "revision", "version"},
	)
	reg.MustRegister(buildInfo)
	buildInfo.WithLabelValues(runtime.Version(), buildTime, version).Set(1)
}
