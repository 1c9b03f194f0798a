package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsExtendedTotal,
		subscriptionsExpiredTotal,
		membersKickedTotal,
	)
}

var (
	subscriptionsExtendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_extended_total",
			Help: "Entitlement windows created or stacked.",
		},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Subscriptions deactivated by the expiry sweep.",
		},
	)

	membersKickedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "members_kicked_total",
			Help: "Group removals by reason (expired/unpaid).",
		},
		[]string{"reason"},
	)
)

func IncSubscriptionExtended() { subscriptionsExtendedTotal.Inc() }

func AddSubscriptionsExpired(n int) { subscriptionsExpiredTotal.Add(float64(n)) }

func AddMembersKicked(reason string, n int) {
	membersKickedTotal.WithLabelValues(norm(reason)).Add(float64(n))
}
