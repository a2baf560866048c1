package oms

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики ядра исполнения
// ============================================================
//
// Использование:
// - Grafana дашборды поверх /metrics
// - Алерты на рост отклонений риска и расхождений учёта

// ============ Счётчики жизненного цикла ============

// OrdersSubmitted - ордера, отправленные на площадки
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "execution",
		Name:      "orders_submitted_total",
		Help:      "Total number of orders submitted to venues",
	},
	[]string{"venue", "order_type"},
)

// OrdersFilled - полностью исполненные ордера
var OrdersFilled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "execution",
		Name:      "orders_filled_total",
		Help:      "Total number of fully filled orders",
	},
	[]string{"venue"},
)

// OrdersCancelled - отменённые ордера
var OrdersCancelled = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "execution",
		Name:      "orders_cancelled_total",
		Help:      "Total number of cancelled orders",
	},
)

// OrdersRejected - отклонённые ордера (площадкой или внутренней валидацией)
var OrdersRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "execution",
		Name:      "orders_rejected_total",
		Help:      "Total number of rejected orders",
	},
	[]string{"reason"}, // risk, venue, validation
)

// RiskRejections - ордера, не прошедшие предторговую проверку
var RiskRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Total number of orders rejected by pre-trade risk checks",
	},
	[]string{"code"},
)

// ============ Учёт исполнений ============

// FillsIngested - принятые исполнения
var FillsIngested = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "fills",
		Name:      "ingested_total",
		Help:      "Total number of ingested fills",
	},
	[]string{"venue"},
)

// DuplicateFillsIgnored - повторные отчёты, отброшенные идемпотентностью
var DuplicateFillsIgnored = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "fills",
		Name:      "duplicates_ignored_total",
		Help:      "Total number of duplicate execution reports ignored",
	},
)

// IntegrityViolations - расхождения filled_quantity с суммой исполнений.
// Любое ненулевое значение - повод для алерта
var IntegrityViolations = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "fills",
		Name:      "integrity_violations_total",
		Help:      "Detected mismatches between filled quantity and sum of fills",
	},
)

// ReportsDropped - отчёты, отброшенные переполненной очередью
var ReportsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "oms",
		Subsystem: "fills",
		Name:      "reports_dropped_total",
		Help:      "Execution reports dropped due to full queue",
	},
)

// ============ Латентность ============

// SubmitLatency - время отправки ордера на площадку
var SubmitLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "oms",
		Subsystem: "execution",
		Name:      "submit_latency_seconds",
		Help:      "Time to submit an order to a venue",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"venue"},
)

// ReconcileDuration - длительность одного цикла сверки
var ReconcileDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "oms",
		Subsystem: "execution",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of a full reconciliation pass",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
)

// ============ Состояние ============

// VenueConnected - состояние соединения с площадкой (1/0)
var VenueConnected = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "oms",
		Subsystem: "venues",
		Name:      "connected",
		Help:      "Venue connectivity status (1 = connected)",
	},
	[]string{"venue"},
)

// ActiveOrders - текущее количество активных ордеров
var ActiveOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "oms",
		Subsystem: "execution",
		Name:      "active_orders",
		Help:      "Current number of active orders",
	},
)

// ============ Хелперы ============

// RecordOrderSubmitted фиксирует отправку ордера
func RecordOrderSubmitted(venue, orderType string, elapsed time.Duration) {
	OrdersSubmitted.WithLabelValues(venue, orderType).Inc()
	SubmitLatency.WithLabelValues(venue).Observe(elapsed.Seconds())
}

// RecordOrderFilled фиксирует полное исполнение
func RecordOrderFilled(venue string) {
	OrdersFilled.WithLabelValues(venue).Inc()
}

// RecordOrderCancelled фиксирует отмену
func RecordOrderCancelled() {
	OrdersCancelled.Inc()
}

// RecordOrderRejected фиксирует отклонение с причиной
func RecordOrderRejected(reason string) {
	OrdersRejected.WithLabelValues(reason).Inc()
}

// RecordRiskRejection фиксирует срабатывание проверки риска
func RecordRiskRejection(code string) {
	RiskRejections.WithLabelValues(code).Inc()
}

// RecordFillIngested фиксирует принятое исполнение
func RecordFillIngested(venue string) {
	FillsIngested.WithLabelValues(venue).Inc()
}

// RecordDuplicateFillIgnored фиксирует отброшенный дубликат
func RecordDuplicateFillIgnored() {
	DuplicateFillsIgnored.Inc()
}

// RecordIntegrityViolation фиксирует расхождение учёта
func RecordIntegrityViolation() {
	IntegrityViolations.Inc()
}

// RecordReportDropped фиксирует потерю отчёта из-за переполнения очереди
func RecordReportDropped() {
	ReportsDropped.Inc()
}

// RecordReconcileDuration фиксирует длительность цикла сверки
func RecordReconcileDuration(elapsed time.Duration) {
	ReconcileDuration.Observe(elapsed.Seconds())
}

// SetVenueConnected обновляет gauge состояния площадки
func SetVenueConnected(venue string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	VenueConnected.WithLabelValues(venue).Set(v)
}

// SetActiveOrders обновляет количество активных ордеров
func SetActiveOrders(n int) {
	ActiveOrders.Set(float64(n))
}
