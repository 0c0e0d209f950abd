package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RegistrationsCreated   prometheus.Counter
	RegistrationsApproved  prometheus.Counter
	RegistrationsRejected  prometheus.Counter
	RegistrationsCancelled prometheus.Counter
	ApprovalsRejectedFull  prometheus.Counter
	ResultsRecorded        prometheus.Counter
	ParticipantsVerified   prometheus.Counter
	ResultShellsCreated    prometheus.Counter
	StreamSubscribers      prometheus.Gauge
	StreamEventsPublished  prometheus.Counter
	StreamObserverAgents   *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on the given registerer. Tests pass a fresh
// prometheus.NewRegistry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_registrations_created_total",
			Help: "Total number of event registrations submitted",
		}),
		RegistrationsApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_registrations_approved_total",
			Help: "Total number of registrations approved by an admin",
		}),
		RegistrationsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_registrations_rejected_total",
			Help: "Total number of registrations rejected by an admin",
		}),
		RegistrationsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_registrations_cancelled_total",
			Help: "Total number of registrations cancelled by their owner",
		}),
		ApprovalsRejectedFull: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_approvals_rejected_event_full_total",
			Help: "Total number of approvals refused because the event was at capacity",
		}),
		ResultsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_results_recorded_total",
			Help: "Total number of race result writes (both write paths)",
		}),
		ParticipantsVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_participants_verified_total",
			Help: "Total number of participants verified against event guidelines",
		}),
		ResultShellsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_result_shells_created_total",
			Help: "Total number of result shells materialized by reconciliation",
		}),
		StreamSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "paddock_stream_subscribers",
			Help: "Number of currently connected result-stream observers",
		}),
		StreamEventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "paddock_stream_events_published_total",
			Help: "Total number of events fanned out to result-stream observers",
		}),
		StreamObserverAgents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paddock_stream_observer_agents_total",
			Help: "Result-stream subscriptions by observer browser family",
		}, []string{"browser"}),
	}
}
