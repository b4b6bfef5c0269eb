// Package metrics contains the Prometheus collectors of the newsletter backend.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/willemschots/newsletter/internal"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Hash operation label values.
const (
	OpVerify = "verify"
	OpHash   = "hash"
)

// Metrics holds all collectors. Create it with New.
type Metrics struct {
	CredentialValidationsTotal *prometheus.CounterVec
	PasswordChangesTotal       *prometheus.CounterVec
	PasswordHashDuration       *prometheus.HistogramVec
	HashJobsInFlight           prometheus.Gauge
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDuration        *prometheus.HistogramVec
	BuildInfo                  *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer, build internal.Build) (*Metrics, error) {
	m := &Metrics{
		CredentialValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credential_validations_total",
				Help: "Total number of credential validations.",
			},
			[]string{"result", "reason"},
		),
		PasswordChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "password_changes_total",
				Help: "Total number of password changes.",
			},
			[]string{"result"},
		),
		PasswordHashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "password_hash_duration_seconds",
				Help:    "Duration of password hash computations.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
		HashJobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "password_hash_jobs_in_flight",
				Help: "Number of password hash computations currently running.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "build_info",
				Help: "Build information of the running binary.",
			},
			[]string{"revision", "local_modified", "go_version"},
		),
	}

	m.BuildInfo.WithLabelValues(build.Revision, build.LocalModified, build.GoVersion).Set(1)

	var errs []error
	for _, c := range []prometheus.Collector{
		m.CredentialValidationsTotal,
		m.PasswordChangesTotal,
		m.PasswordHashDuration,
		m.HashJobsInFlight,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BuildInfo,
	} {
		errs = append(errs, reg.Register(c))
	}

	err := errors.Join(errs...)
	if err != nil {
		return nil, err
	}

	return m, nil
}
