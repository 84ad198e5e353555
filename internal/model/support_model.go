package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SupportStatus 贡献记录状态
type SupportStatus string

const (
	SupportStatusPending   SupportStatus = "pending"   // 已广播，待确认
	SupportStatusConfirmed SupportStatus = "confirmed" // 已上链确认
	SupportStatusFailed    SupportStatus = "failed"    // 交易回滚
)

// SupportModel 一笔已提交的链上贡献
type SupportModel struct {
	Id        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	FromAddress string          `json:"from_address" gorm:"type:varchar(42);not null;index"`
	ToAddress   string          `json:"to_address" gorm:"type:varchar(42);not null;index"`
	NetAmount   decimal.Decimal `json:"net_amount" gorm:"type:decimal(65,0);not null"` // 单位 wei，builder 实际到账金额
	Message     *string         `json:"message,omitempty" gorm:"type:text"`

	ChainId int64  `json:"chain_id" gorm:"not null;uniqueIndex:idx_supports_chain_tx,priority:1"`
	TxHash  string `json:"tx_hash" gorm:"type:varchar(66);not null;uniqueIndex:idx_supports_chain_tx,priority:2"`

	Status      SupportStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	ProjectId   *string       `json:"project_id,omitempty" gorm:"type:varchar(64);index"`
	ViaContract bool          `json:"via_contract" gorm:"not null;default:false"`

	BlockNum      *int64 `json:"block_num,omitempty"`
	Confirmations *int64 `json:"confirmations,omitempty"`

	// LastCheckedAt 对账任务最近一次取出该记录的时间
	LastCheckedAt *time.Time `json:"-" gorm:"index"`
}

// TableName 自定义表名
func (SupportModel) TableName() string {
	return "supports"
}

// BeforeCreate 生成ID并统一地址大小写
func (s *SupportModel) BeforeCreate(tx *gorm.DB) error {
	if s.Id == "" {
		s.Id = uuid.NewString()
	}
	s.FromAddress = strings.ToLower(s.FromAddress)
	s.ToAddress = strings.ToLower(s.ToAddress)
	s.TxHash = strings.ToLower(s.TxHash)
	if s.Status == "" {
		s.Status = SupportStatusPending
	}
	return nil
}

// IsFinal 是否已是最终状态
func (s *SupportModel) IsFinal() bool {
	return s.Status == SupportStatusConfirmed || s.Status == SupportStatusFailed
}
