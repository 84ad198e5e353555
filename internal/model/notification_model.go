package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotificationContribution        NotificationType = "contribution"
	NotificationProjectContribution NotificationType = "project_contribution"
)

// NotificationModel 站内通知
type NotificationModel struct {
	Id        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	UserAddress string           `json:"user_address" gorm:"type:varchar(42);not null;index"`
	Type        NotificationType `json:"type" gorm:"type:varchar(32);not null"`
	Title       string           `json:"title" gorm:"not null"`
	Message     string           `json:"message" gorm:"type:text"`
	Link        string           `json:"link"`
	Read        bool             `json:"read" gorm:"not null;default:false"`
}

// TableName 自定义表名
func (NotificationModel) TableName() string {
	return "notifications"
}

// BeforeCreate 生成ID
func (n *NotificationModel) BeforeCreate(tx *gorm.DB) error {
	if n.Id == "" {
		n.Id = uuid.NewString()
	}
	n.UserAddress = strings.ToLower(n.UserAddress)
	return nil
}
