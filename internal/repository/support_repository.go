package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"gorm.io/gorm"
)

// SupportRepository 贡献记录存储
type SupportRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSupportRepository 创建贡献记录存储
func NewSupportRepository(db *gorm.DB) *SupportRepository {
	return &SupportRepository{db: db, now: time.Now}
}

// Create 插入一条 pending 记录
func (r *SupportRepository) Create(ctx context.Context, support *model.SupportModel) error {
	support.Status = model.SupportStatusPending
	if err := r.db.WithContext(ctx).Create(support).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSupport
		}
		return err
	}
	return nil
}

// FindByTxHash 按链和交易哈希查找
func (r *SupportRepository) FindByTxHash(ctx context.Context, chainID int64, txHash string) (*model.SupportModel, error) {
	var support model.SupportModel
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND tx_hash = ?", chainID, strings.ToLower(txHash)).
		First(&support).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &support, nil
}

// ListPending 取最久未检查的待确认记录并记下检查时间，
// 从未检查过的排在最前，长期不上链的记录不会挡住后来者
func (r *SupportRepository) ListPending(ctx context.Context, limit int) ([]model.SupportModel, error) {
	var supports []model.SupportModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ?", model.SupportStatusPending).
			Order("CASE WHEN last_checked_at IS NULL THEN 0 ELSE 1 END").
			Order("last_checked_at ASC").
			Order("created_at ASC").
			Limit(limit).
			Find(&supports).Error; err != nil {
			return err
		}
		if len(supports) == 0 {
			return nil
		}

		ids := make([]string, len(supports))
		for i := range supports {
			ids[i] = supports[i].Id
		}
		checkedAt := r.now()
		if err := tx.Model(&model.SupportModel{}).
			Where("id IN ?", ids).
			UpdateColumn("last_checked_at", checkedAt).Error; err != nil {
			return err
		}
		for i := range supports {
			supports[i].LastCheckedAt = &checkedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return supports, nil
}

// UpdateStatus 将 pending 记录更新为最终状态，已是最终状态的记录不受影响
func (r *SupportRepository) UpdateStatus(ctx context.Context, id string, status model.SupportStatus, blockNum, confirmations *int64) (bool, error) {
	if status == model.SupportStatusPending {
		return false, nil
	}

	updates := map[string]interface{}{"status": status}
	if blockNum != nil {
		updates["block_num"] = *blockNum
	}
	if confirmations != nil {
		updates["confirmations"] = *confirmations
	}

	result := r.db.WithContext(ctx).
		Model(&model.SupportModel{}).
		Where("id = ? AND status = ?", id, model.SupportStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByToAddress builder 收到的贡献
func (r *SupportRepository) ListByToAddress(ctx context.Context, address string, page, pageSize int) ([]model.SupportModel, int64, error) {
	return r.list(ctx, "to_address = ?", strings.ToLower(address), page, pageSize)
}

// ListByFromAddress supporter 发出的贡献
func (r *SupportRepository) ListByFromAddress(ctx context.Context, address string, page, pageSize int) ([]model.SupportModel, int64, error) {
	return r.list(ctx, "from_address = ?", strings.ToLower(address), page, pageSize)
}

// ListByProject 项目收到的贡献
func (r *SupportRepository) ListByProject(ctx context.Context, projectID string, page, pageSize int) ([]model.SupportModel, int64, error) {
	return r.list(ctx, "project_id = ?", projectID, page, pageSize)
}

func (r *SupportRepository) list(ctx context.Context, where string, arg interface{}, page, pageSize int) ([]model.SupportModel, int64, error) {
	var supports []model.SupportModel
	var total int64

	// 获取总数
	if err := r.db.WithContext(ctx).Model(&model.SupportModel{}).Where(where, arg).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := r.db.WithContext(ctx).
		Where(where, arg).
		Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&supports).Error; err != nil {
		return nil, 0, err
	}

	return supports, total, nil
}
