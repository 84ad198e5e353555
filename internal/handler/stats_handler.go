package handler

import (
	"net/http"
	"strconv"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/fee"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logic"
	"github.com/gin-gonic/gin"
)

// StatsHandler 统计与排行榜处理器
type StatsHandler struct {
	statsLogic *logic.StatsLogic
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(statsLogic *logic.StatsLogic) *StatsHandler {
	return &StatsHandler{statsLogic: statsLogic}
}

// GetBuilderStats builder 各链收款统计
func (h *StatsHandler) GetBuilderStats(c *gin.Context) {
	stats, err := h.statsLogic.BuilderChainStats(c.Request.Context(), c.Param("address"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", stats)
}

// GetChainStats 全平台各链统计
func (h *StatsHandler) GetChainStats(c *gin.Context) {
	stats, err := h.statsLogic.GlobalChainStats(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", stats)
}

// GetTopSupporters supporter 排行榜，默认 Base 链
func (h *StatsHandler) GetTopSupporters(c *gin.Context) {
	chainID, ok := queryChainID(c, strconv.FormatInt(chain.BaseChainID, 10))
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	board, err := h.statsLogic.TopSupporters(c.Request.Context(), chainID, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", board)
}

// GetTopBuilders builder 排行榜，默认 Base 链
func (h *StatsHandler) GetTopBuilders(c *gin.Context) {
	chainID, ok := queryChainID(c, strconv.FormatInt(chain.BaseChainID, 10))
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	board, err := h.statsLogic.TopBuilders(c.Request.Context(), chainID, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", board)
}

// ChainHandler 链信息处理器
type ChainHandler struct {
	registry *chain.Registry
}

// NewChainHandler 创建链信息处理器
func NewChainHandler(registry *chain.Registry) *ChainHandler {
	return &ChainHandler{registry: registry}
}

// ListChains 支持的链
func (h *ChainHandler) ListChains(c *gin.Context) {
	descriptors := h.registry.Descriptors()
	chains := make([]ChainResponse, 0, len(descriptors))
	for _, d := range descriptors {
		item := ChainResponse{
			ChainID:                d.ChainID,
			Key:                    d.Key,
			Name:                   d.Name,
			NativeCurrencySymbol:   d.NativeCurrencySymbol,
			NativeCurrencyDecimals: d.NativeCurrencyDecimals,
			RPCURL:                 d.RPCURL,
			ExplorerBaseURL:        d.ExplorerBaseURL,
			ContractPath:           d.HasFeeContract(),
			PlatformFeeBps:         fee.PlatformFeeBps,
		}
		if d.HasFeeContract() {
			address := d.FeeContractAddress.Hex()
			item.FeeContractAddress = &address
		}
		chains = append(chains, item)
	}
	SuccessResponse(c, http.StatusOK, "ok", chains)
}
