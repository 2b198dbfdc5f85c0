package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// remindersSent counts reminder emails dispatched, labeled by tier.
	remindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_reminders_sent_total",
			Help: "Total number of cart reminder emails sent",
		},
		[]string{"email_type"},
	)

	// remindersFailed counts reminder emails that could not be delivered.
	remindersFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_reminders_failed_total",
			Help: "Total number of cart reminder emails that failed to send",
		},
		[]string{"email_type"},
	)

	// cartsAbandoned counts abandoned cart snapshots captured.
	cartsAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_carts_abandoned_total",
			Help: "Total number of abandoned carts captured",
		},
	)

	// cartsRecovered counts carts recovered through a reminder link.
	cartsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_carts_recovered_total",
			Help: "Total number of abandoned carts recovered",
		},
	)

	// cartsConverted counts recovered carts that completed checkout.
	cartsConverted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_carts_converted_total",
			Help: "Total number of abandoned carts converted to orders",
		},
	)

	// couponsRedeemed counts coupon redemptions written to the ledger.
	couponsRedeemed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coupon_redemptions_total",
			Help: "Total number of coupon redemptions recorded",
		},
	)
)
