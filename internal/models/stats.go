package models

import "github.com/shopspring/decimal"

// ExecutionStats - агрегированная статистика исполнения
type ExecutionStats struct {
	OrdersByStatus map[string]int  `json:"orders_by_status"`
	TotalOrders    int             `json:"total_orders"`
	TotalFills     int             `json:"total_fills"`
	TradedVolume   decimal.Decimal `json:"traded_volume"`   // суммарная стоимость исполнений
	TotalCommission decimal.Decimal `json:"total_commission"`
	OrdersByVenue  map[string]int  `json:"orders_by_venue"`
}

// SymbolStat - статистика по одному инструменту
type SymbolStat struct {
	Symbol       string          `json:"symbol"`
	Orders       int             `json:"orders"`
	TradedVolume decimal.Decimal `json:"traded_volume"`
}
