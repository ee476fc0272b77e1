// Package metrics exposes compctl Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all compctl metrics.
type Registry struct {
	gatherer prometheus.Gatherer

	// Component metrics
	ComponentSwitches *prometheus.CounterVec
	BatchTotal        *prometheus.CounterVec
	BatchDuration     *prometheus.HistogramVec

	// IFW metrics
	RuleFiles prometheus.Gauge

	// Privilege metrics
	PermissionStatus *prometheus.GaugeVec
	PrivilegeProbes  *prometheus.CounterVec

	// Preference metrics
	PreferenceChanges prometheus.Counter
	ControllerInit    *prometheus.CounterVec
}

// Get returns the process wide registry backed by the default Prometheus
// registerer, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return registry
}

// New returns a registry on a private Prometheus registry (for testing).
func New() *Registry {
	reg := prometheus.NewRegistry()
	return newRegistry(reg, reg)
}

func newRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Registry {
	factory := promauto.With(reg)
	r := &Registry{gatherer: gatherer}

	r.ComponentSwitches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "compctl_component_switches_total",
		Help: "Component state changes by controller, operation and result",
	}, []string{"controller", "op", "result"})

	r.BatchTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "compctl_batches_total",
		Help: "Batch operations by controller and operation",
	}, []string{"controller", "op"})

	r.BatchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "compctl_batch_duration_seconds",
		Help:    "Batch operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"controller", "op"})

	r.RuleFiles = factory.NewGauge(prometheus.GaugeOpts{
		Name: "compctl_ifw_rule_files",
		Help: "Number of packages with an Intent Firewall rule file",
	})

	r.PermissionStatus = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "compctl_permission_status",
		Help: "Acquired privilege per controller family (0 none, 1 shell, 2 root)",
	}, []string{"family"})

	r.PrivilegeProbes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "compctl_privilege_probes_total",
		Help: "Privilege probes by family and resulting status",
	}, []string{"family", "status"})

	r.PreferenceChanges = factory.NewCounter(prometheus.CounterOpts{
		Name: "compctl_preference_changes_total",
		Help: "Observed controller preference changes",
	})

	r.ControllerInit = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "compctl_controller_init_total",
		Help: "Controller initializations by kind and status",
	}, []string{"kind", "status"})

	return r
}

// RecordSwitch records one component switch.
func (r *Registry) RecordSwitch(controller, op string, ok bool) {
	r.ComponentSwitches.WithLabelValues(controller, op, resultString(ok)).Inc()
}

// RecordBatch records a finished batch.
func (r *Registry) RecordBatch(controller, op string, succeeded, total int, duration time.Duration) {
	r.BatchTotal.WithLabelValues(controller, op).Inc()
	r.BatchDuration.WithLabelValues(controller, op).Observe(duration.Seconds())
	r.ComponentSwitches.WithLabelValues(controller, op, "success").Add(float64(succeeded))
	r.ComponentSwitches.WithLabelValues(controller, op, "failure").Add(float64(total - succeeded))
}

// RecordProbe records a privilege probe result.
func (r *Registry) RecordProbe(family, status string, level int) {
	r.PrivilegeProbes.WithLabelValues(family, status).Inc()
	r.PermissionStatus.WithLabelValues(family).Set(float64(level))
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func resultString(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
