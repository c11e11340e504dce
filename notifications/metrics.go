package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	received = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_notifications_received_total",
		Help: "Notification frames appended to session logs",
	})
	dials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_notification_dials_total",
		Help: "WebSocket dials to the notification channel by result",
	}, []string{"result"})
	openSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "console_notification_subscriptions",
		Help: "Open notification subscriptions",
	})
)
