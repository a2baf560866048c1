package repository

import (
	"context"
	"database/sql"

	"oms/internal/models"
)

// StatsRepository - агрегация статистики исполнения из таблиц orders и fills
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetExecutionStats возвращает сводную статистику исполнения
func (r *StatsRepository) GetExecutionStats(ctx context.Context) (*models.ExecutionStats, error) {
	stats := &models.ExecutionStats{
		OrdersByStatus: make(map[string]int),
		OrdersByVenue:  make(map[string]int),
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.OrdersByStatus[status] = count
		stats.TotalOrders += count
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	venueRows, err := r.db.QueryContext(ctx,
		`SELECT venue, COUNT(*) FROM orders WHERE venue <> '' GROUP BY venue`)
	if err != nil {
		return nil, err
	}
	defer venueRows.Close()

	for venueRows.Next() {
		var venue string
		var count int
		if err := venueRows.Scan(&venue, &count); err != nil {
			return nil, err
		}
		stats.OrdersByVenue[venue] = count
	}
	if err = venueRows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(value), 0), COALESCE(SUM(commission), 0) FROM fills`).
		Scan(&stats.TotalFills, &stats.TradedVolume, &stats.TotalCommission)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// GetTopSymbols возвращает инструменты с наибольшим числом ордеров
func (r *StatsRepository) GetTopSymbols(ctx context.Context, limit int) ([]models.SymbolStat, error) {
	query := `
		SELECT o.symbol, COUNT(*) AS orders, COALESCE(SUM(f.value), 0) AS volume
		FROM orders o
		LEFT JOIN fills f ON f.order_id = o.id
		GROUP BY o.symbol
		ORDER BY orders DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.SymbolStat
	for rows.Next() {
		var stat models.SymbolStat
		if err := rows.Scan(&stat.Symbol, &stat.Orders, &stat.TradedVolume); err != nil {
			return nil, err
		}
		result = append(result, stat)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
