package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_orders_failed_total",
		Help: "Total number of rejected order mutations by error code",
	}, []string{"operation", "code"})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"by"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_order_transitions_total",
		Help: "Total number of committed status transitions",
	}, []string{"from", "to"})

	DriverAssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_driver_assignments_total",
		Help: "Total number of driver assignments",
	})

	AdminOverridesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_admin_overrides_total",
		Help: "Total number of admin overrides by action",
	}, []string{"action"})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fuel_inventory_reserve_latency_seconds",
		Help:    "Latency of inventory reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	InventoryReleasedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_inventory_released_units_total",
		Help: "Total quantity returned to vendor stock",
	})

	EventsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_events_emitted_total",
		Help: "Total number of order events accepted by the event bus",
	}, []string{"type"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_events_dropped_total",
		Help: "Total number of order events dropped because the queue was full",
	}, []string{"type"})

	EventSinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_event_sink_failures_total",
		Help: "Total number of failed event deliveries per sink",
	}, []string{"sink"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_events_consumed_total",
		Help: "Total number of order-event messages consumed from Kafka by outcome",
	}, []string{"result"})

	NotificationsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_notifications_created_total",
		Help: "Total number of persisted notifications",
	}, []string{"type"})

	NotificationDeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_notification_delivery_failures_total",
		Help: "Total number of failed notification deliveries per channel",
	}, []string{"channel"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
