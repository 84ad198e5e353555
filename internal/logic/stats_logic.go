package logic

import (
	"context"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/fee"
	"github.com/Edcode-bot/gasmeup-sub000/internal/repository"
	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// StatsStore 统计查询
type StatsStore interface {
	ChainTotals(ctx context.Context, toAddress string) ([]repository.ChainTotal, error)
	TopSupporters(ctx context.Context, chainID int64, limit int) ([]repository.RankEntry, error)
	TopBuilders(ctx context.Context, chainID int64, limit int) ([]repository.RankEntry, error)
}

// ChainStats 单链统计视图
type ChainStats struct {
	ChainID      int64  `json:"chain_id"`
	ChainName    string `json:"chain_name"`
	Symbol       string `json:"symbol"`
	TotalAmount  string `json:"total_amount"`
	TotalDisplay string `json:"total_display"`
	Count        int64  `json:"count"`
	Supporters   int64  `json:"supporters"`
}

// LeaderboardEntry 排行榜条目视图
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	Address        string `json:"address"`
	TotalAmount    string `json:"total_amount"`
	TotalDisplay   string `json:"total_display"`
	Count          int64  `json:"count"`
	Counterparties int64  `json:"counterparties"`
}

// Leaderboard 单链排行榜
type Leaderboard struct {
	ChainID int64              `json:"chain_id"`
	Symbol  string             `json:"symbol"`
	Entries []LeaderboardEntry `json:"entries"`
}

// StatsLogic 统计与排行榜
type StatsLogic struct {
	registry *chain.Registry
	stats    StatsStore
}

// NewStatsLogic 创建统计业务逻辑
func NewStatsLogic(registry *chain.Registry, stats StatsStore) *StatsLogic {
	return &StatsLogic{registry: registry, stats: stats}
}

// BuilderChainStats builder 在各链上收到的贡献，未收到贡献的链也会列出
func (s *StatsLogic) BuilderChainStats(ctx context.Context, address string) ([]ChainStats, error) {
	if !common.IsHexAddress(address) {
		return nil, &ValidationError{Field: "address", Reason: "not a valid address"}
	}
	return s.chainStats(ctx, address)
}

// GlobalChainStats 全平台各链汇总
func (s *StatsLogic) GlobalChainStats(ctx context.Context) ([]ChainStats, error) {
	return s.chainStats(ctx, "")
}

func (s *StatsLogic) chainStats(ctx context.Context, toAddress string) ([]ChainStats, error) {
	totals, err := s.stats.ChainTotals(ctx, toAddress)
	if err != nil {
		return nil, err
	}
	byChain := make(map[int64]repository.ChainTotal, len(totals))
	for _, t := range totals {
		byChain[t.ChainId] = t
	}

	descriptors := s.registry.Descriptors()
	result := make([]ChainStats, 0, len(descriptors))
	for _, d := range descriptors {
		t := byChain[d.ChainID]
		result = append(result, ChainStats{
			ChainID:      d.ChainID,
			ChainName:    d.Name,
			Symbol:       d.NativeCurrencySymbol,
			TotalAmount:  t.TotalAmount.String(),
			TotalDisplay: fee.FormatUnits(t.TotalAmount.BigInt(), d.NativeCurrencyDecimals),
			Count:        t.Count,
			Supporters:   t.Supporters,
		})
	}
	return result, nil
}

// TopSupporters supporter 排行榜
func (s *StatsLogic) TopSupporters(ctx context.Context, chainID int64, limit int) (*Leaderboard, error) {
	return s.leaderboard(ctx, chainID, limit, s.stats.TopSupporters)
}

// TopBuilders builder 排行榜
func (s *StatsLogic) TopBuilders(ctx context.Context, chainID int64, limit int) (*Leaderboard, error) {
	return s.leaderboard(ctx, chainID, limit, s.stats.TopBuilders)
}

func (s *StatsLogic) leaderboard(ctx context.Context, chainID int64, limit int,
	query func(context.Context, int64, int) ([]repository.RankEntry, error)) (*Leaderboard, error) {
	d, err := s.registry.GetChainDescriptor(chainID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	rows, err := query(ctx, chainID, limit)
	if err != nil {
		return nil, err
	}

	board := &Leaderboard{ChainID: chainID, Symbol: d.NativeCurrencySymbol, Entries: make([]LeaderboardEntry, 0, len(rows))}
	for i, row := range rows {
		board.Entries = append(board.Entries, LeaderboardEntry{
			Rank:           i + 1,
			Address:        row.Address,
			TotalAmount:    row.TotalAmount.String(),
			TotalDisplay:   fee.FormatUnits(row.TotalAmount.BigInt(), d.NativeCurrencyDecimals),
			Count:          row.Count,
			Counterparties: row.Counterparties,
		})
	}
	return board, nil
}
