package oms

import (
	"time"

	"github.com/shopspring/decimal"

	"go.uber.org/zap"
)

// ExecutionReport - отчёт площадки об исполнении, единица очереди приёма.
// Push-площадки публикуют отчёты сами, pull-площадки - через reconcile-цикл;
// обе дороги сходятся в одной очереди перед FillRecorder.
type ExecutionReport struct {
	OrderID         int64           `json:"order_id"`
	Venue           string          `json:"venue"`
	ExternalRef     string          `json:"external_ref"`
	ExternalFillID  string          `json:"external_fill_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commission_asset"`
	Liquidity       string          `json:"liquidity"`
	Counterparty    string          `json:"counterparty,omitempty"`
	FillTime        time.Time       `json:"fill_time"`
}

// ReportQueue - буферизованная очередь отчётов об исполнении
type ReportQueue struct {
	ch     chan ExecutionReport
	logger *zap.Logger
}

// NewReportQueue создаёт очередь отчётов с заданной ёмкостью буфера
func NewReportQueue(capacity int, logger *zap.Logger) *ReportQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportQueue{
		ch:     make(chan ExecutionReport, capacity),
		logger: logger,
	}
}

// Publish кладёт отчёт в очередь без блокировки.
// Переполненная очередь роняет отчёт с логом и метрикой: reconcile-цикл
// повторно увидит исполнение при следующем опросе площадки.
func (q *ReportQueue) Publish(report ExecutionReport) bool {
	select {
	case q.ch <- report:
		return true
	default:
		q.logger.Warn("execution report queue is full, dropping report",
			zap.Int64("order_id", report.OrderID),
			zap.String("external_fill_id", report.ExternalFillID))
		RecordReportDropped()
		return false
	}
}

// Reports возвращает канал для потребителя очереди
func (q *ReportQueue) Reports() <-chan ExecutionReport {
	return q.ch
}

// Len возвращает текущую глубину очереди
func (q *ReportQueue) Len() int {
	return len(q.ch)
}
