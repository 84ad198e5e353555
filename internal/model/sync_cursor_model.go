package model

import "time"

// SyncCursorModel 每条链已索引到的区块
type SyncCursorModel struct {
	ChainId   int64     `json:"chain_id" gorm:"primaryKey;autoIncrement:false"`
	BlockNum  int64     `json:"block_num" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 自定义表名
func (SyncCursorModel) TableName() string {
	return "sync_cursors"
}
