package repository

import (
	"context"
	"strings"

	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"gorm.io/gorm"
)

// NotificationRepository 站内通知存储
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知存储
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create 新建通知
func (r *NotificationRepository) Create(ctx context.Context, notification *model.NotificationModel) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// ListByUser 用户最近的通知
func (r *NotificationRepository) ListByUser(ctx context.Context, address string, limit int) ([]model.NotificationModel, error) {
	var notifications []model.NotificationModel
	if err := r.db.WithContext(ctx).
		Where("user_address = ?", strings.ToLower(address)).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}
