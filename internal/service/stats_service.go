package service

import (
	"context"

	"go.uber.org/zap"

	"oms/internal/models"
)

const maxTopSymbols = 50

// StatsService предоставляет бизнес-логику для работы со статистикой.
//
// Функции:
// - GetStats: получить сводную статистику по ордерам и исполнениям
// - GetTopSymbols: получить инструменты с наибольшим числом ордеров
type StatsService struct {
	statsRepo StatsRepositoryInterface
	logger    *zap.Logger
}

// NewStatsService создает новый экземпляр StatsService
func NewStatsService(statsRepo StatsRepositoryInterface, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		statsRepo: statsRepo,
		logger:    logger,
	}
}

// GetStats возвращает сводную статистику.
//
// Включает:
// - Количество ордеров по статусам и по площадкам
// - Количество исполнений
// - Общий наторгованный объем и суммарную комиссию
func (s *StatsService) GetStats(ctx context.Context) (*models.ExecutionStats, error) {
	return s.statsRepo.GetExecutionStats(ctx)
}

// GetTopSymbols возвращает инструменты с наибольшим числом ордеров.
//
// Возвращает массив SymbolStat с полями Symbol, Orders и TradedVolume.
func (s *StatsService) GetTopSymbols(ctx context.Context, limit int) ([]models.SymbolStat, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > maxTopSymbols {
		limit = maxTopSymbols
	}
	return s.statsRepo.GetTopSymbols(ctx, limit)
}
