package repository

import (
	"context"
	"errors"

	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CursorRepository 索引进度存储
type CursorRepository struct {
	db *gorm.DB
}

// NewCursorRepository 创建索引进度存储
func NewCursorRepository(db *gorm.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get 获取链的已处理区块，没有记录时 ok 为 false
func (r *CursorRepository) Get(ctx context.Context, chainID int64) (uint64, bool, error) {
	var cursor model.SyncCursorModel
	err := r.db.WithContext(ctx).Where("chain_id = ?", chainID).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(cursor.BlockNum), true, nil
}

// Save 记录已处理到的区块
func (r *CursorRepository) Save(ctx context.Context, chainID int64, block uint64) error {
	cursor := model.SyncCursorModel{ChainId: chainID, BlockNum: int64(block)}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"block_num", "updated_at"}),
	}).Create(&cursor).Error
}
