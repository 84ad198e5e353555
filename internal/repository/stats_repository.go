package repository

import (
	"context"
	"strings"

	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ChainTotal 单链汇总
type ChainTotal struct {
	ChainId     int64           `json:"chain_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Count       int64           `json:"count"`
	Supporters  int64           `json:"supporters"`
}

// RankEntry 排行榜条目
type RankEntry struct {
	Address        string          `json:"address"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Count          int64           `json:"count"`
	Counterparties int64           `json:"counterparties"` // supporter 支持过的 builder 数，或 builder 的 supporter 数
}

// StatsRepository 统计查询，failed 记录不计入
type StatsRepository struct {
	db *gorm.DB
}

// NewStatsRepository 创建统计查询
func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) counted(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.SupportModel{}).
		Where("status <> ?", model.SupportStatusFailed)
}

// ChainTotals 按链汇总，toAddress 为空时统计全部
func (r *StatsRepository) ChainTotals(ctx context.Context, toAddress string) ([]ChainTotal, error) {
	query := r.counted(ctx)
	if toAddress != "" {
		query = query.Where("to_address = ?", strings.ToLower(toAddress))
	}

	var totals []ChainTotal
	if err := query.
		Select("chain_id, COALESCE(SUM(net_amount), 0) AS total_amount, COUNT(*) AS count, COUNT(DISTINCT from_address) AS supporters").
		Group("chain_id").
		Order("chain_id").
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

// TopSupporters 单链 supporter 排行
func (r *StatsRepository) TopSupporters(ctx context.Context, chainID int64, limit int) ([]RankEntry, error) {
	var entries []RankEntry
	if err := r.counted(ctx).
		Where("chain_id = ?", chainID).
		Select("from_address AS address, SUM(net_amount) AS total_amount, COUNT(*) AS count, COUNT(DISTINCT to_address) AS counterparties").
		Group("from_address").
		Order("total_amount DESC, address ASC").
		Limit(limit).
		Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// TopBuilders 单链 builder 排行，项目贡献不计入个人
func (r *StatsRepository) TopBuilders(ctx context.Context, chainID int64, limit int) ([]RankEntry, error) {
	var entries []RankEntry
	if err := r.counted(ctx).
		Where("chain_id = ? AND project_id IS NULL", chainID).
		Select("to_address AS address, SUM(net_amount) AS total_amount, COUNT(*) AS count, COUNT(DISTINCT from_address) AS counterparties").
		Group("to_address").
		Order("total_amount DESC, address ASC").
		Limit(limit).
		Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
