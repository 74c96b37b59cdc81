// Package metrics exposes the service's Prometheus counters.
//
// Counters are package-level promauto vars: they register themselves with
// the default registry at init time, and the server mounts
// promhttp.Handler() at /metrics to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegistrationsTotal counts successful account registrations, split by
// whether the registration carried a valid referral code.
var RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "referral_registrations_total",
	Help: "Successful account registrations.",
}, []string{"referred"}) // "true" | "false"

// RedemptionsTotal counts successful referral code redemptions.
var RedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "referral_redemptions_total",
	Help: "Successful referral code redemptions.",
})

// AwardsTotal counts cadence awards credited to referrers.
var AwardsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "referral_awards_total",
	Help: "Credit awards granted to referrers at cadence boundaries.",
})

// CodesIssuedTotal counts referral codes issued.
var CodesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "referral_codes_issued_total",
	Help: "Referral codes issued.",
})

// AuthFailuresTotal counts failed authentication attempts (unknown email or
// wrong password — deliberately not split, to keep the metric as vague as
// the login error).
var AuthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "referral_auth_failures_total",
	Help: "Failed authentication attempts.",
})
