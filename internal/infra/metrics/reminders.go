package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(remindersSentTotal) }

var remindersSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reminders_sent_total",
		Help: "Reminders delivered, labeled by kind (expiry_3d/expiry_1d/expiry_notice/stale).",
	},
	[]string{"kind"},
)

func AddRemindersSent(kind string, n int) {
	remindersSentTotal.WithLabelValues(norm(kind)).Add(float64(n))
}
