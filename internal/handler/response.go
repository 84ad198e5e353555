package handler

import (
	"errors"
	"net/http"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logic"
	"github.com/Edcode-bot/gasmeup-sub000/internal/repository"
	"github.com/Edcode-bot/gasmeup-sub000/internal/settlement"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// PagedResponse 分页响应
func PagedResponse(c *gin.Context, items interface{}, page, pageSize int, total int64) {
	SuccessResponse(c, http.StatusOK, "ok", PagedData{
		Items: items,
		Pagination: Pagination{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
		},
	})
}

// HandleError 按错误类型映射 HTTP 状态码
func HandleError(c *gin.Context, err error) {
	var (
		unsupported   *chain.UnsupportedChainError
		validation    *logic.ValidationError
		switchErr     *settlement.WalletChainSwitchError
		settlementErr *settlement.SettlementError
	)

	switch {
	case errors.As(err, &unsupported), errors.As(err, &validation):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrRecordNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.As(err, &switchErr):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.As(err, &settlementErr):
		ErrorResponse(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, logic.ErrSettlementDisabled), errors.Is(err, settlement.ErrNoWallet):
		ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		ErrorResponse(c, http.StatusInternalServerError, "internal server error")
	}
}
