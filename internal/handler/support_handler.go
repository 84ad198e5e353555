package handler

import (
	"net/http"
	"strconv"

	"github.com/Edcode-bot/gasmeup-sub000/internal/logic"
	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

// SupportHandler 贡献处理器
type SupportHandler struct {
	supportLogic *logic.SupportLogic
}

// NewSupportHandler 创建贡献处理器
func NewSupportHandler(supportLogic *logic.SupportLogic) *SupportHandler {
	return &SupportHandler{supportLogic: supportLogic}
}

// PreviewFee 手续费预览
func (h *SupportHandler) PreviewFee(c *gin.Context) {
	chainID, ok := queryChainID(c, "")
	if !ok {
		return
	}

	preview, err := h.supportLogic.Preview(c.Request.Context(), logic.PreviewRequest{
		ChainID:     chainID,
		Amount:      c.Query("amount"),
		FromAddress: c.Query("from"),
		ToAddress:   c.Query("to"),
		Message:     c.Query("message"),
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", preview)
}

// SubmitSupport 提交贡献
func (h *SupportHandler) SubmitSupport(c *gin.Context) {
	var req SubmitSupportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.supportLogic.Submit(c.Request.Context(), logic.SubmitRequest{
		ToAddress: req.ToAddress,
		Amount:    req.Amount,
		Message:   req.Message,
		ChainID:   req.ChainID,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusAccepted, "contribution submitted", result)
}

// GetStatus 查询交易状态
func (h *SupportHandler) GetStatus(c *gin.Context) {
	chainID, ok := paramChainID(c)
	if !ok {
		return
	}

	receipt, err := h.supportLogic.Receipt(c.Request.Context(), chainID, c.Param("tx_hash"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", receipt)
}

// Reconcile 手动触发对账
func (h *SupportHandler) Reconcile(c *gin.Context) {
	chainID, ok := paramChainID(c)
	if !ok {
		return
	}

	result, err := h.supportLogic.ReconcileTx(c.Request.Context(), chainID, c.Param("tx_hash"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", result)
}

// ListReceived builder 收到的贡献
func (h *SupportHandler) ListReceived(c *gin.Context) {
	page, pageSize := pageParams(c)
	records, total, err := h.supportLogic.ListReceived(c.Request.Context(), c.Param("address"), page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	PagedResponse(c, records, page, pageSize, total)
}

// ListSent supporter 发出的贡献
func (h *SupportHandler) ListSent(c *gin.Context) {
	page, pageSize := pageParams(c)
	records, total, err := h.supportLogic.ListSent(c.Request.Context(), c.Param("address"), page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	PagedResponse(c, records, page, pageSize, total)
}

// ListByProject 项目收到的贡献
func (h *SupportHandler) ListByProject(c *gin.Context) {
	page, pageSize := pageParams(c)
	records, total, err := h.supportLogic.ListByProject(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	PagedResponse(c, records, page, pageSize, total)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func paramChainID(c *gin.Context) (int64, bool) {
	chainID, err := strconv.ParseInt(c.Param("chain_id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid chain id")
		return 0, false
	}
	return chainID, true
}

// queryChainID 读取 chain_id 查询参数，fallback 为空时参数必填
func queryChainID(c *gin.Context, fallback string) (int64, bool) {
	raw := c.DefaultQuery("chain_id", fallback)
	chainID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid chain id")
		return 0, false
	}
	return chainID, true
}
