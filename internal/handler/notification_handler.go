package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Edcode-bot/gasmeup-sub000/internal/logic"
	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// NotificationLister 通知查询
type NotificationLister interface {
	ListByUser(ctx context.Context, address string, limit int) ([]model.NotificationModel, error)
}

// NotificationHandler 站内通知处理器
type NotificationHandler struct {
	notifications NotificationLister
}

// NewNotificationHandler 创建通知处理器
func NewNotificationHandler(notifications NotificationLister) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ListNotifications 用户最近的通知
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		HandleError(c, &logic.ValidationError{Field: "address", Reason: "not a valid address"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > maxPageSize {
		limit = 20
	}

	list, err := h.notifications.ListByUser(c.Request.Context(), address, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", list)
}
