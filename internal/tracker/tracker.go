package tracker

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/contract"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxStatus 交易确认状态
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
)

const revertedMessage = "Transaction reverted"

// Status 交易状态查询结果
type Status struct {
	Status          TxStatus `json:"status"`
	BlockNumber     *uint64  `json:"block_number,omitempty"`
	Confirmations   *uint64  `json:"confirmations,omitempty"`
	ActualAmount    *big.Int `json:"actual_amount,omitempty"`
	DeliveredAmount *big.Int `json:"delivered_amount,omitempty"` // SupportSent 事件中的金额
	Error           string   `json:"error,omitempty"`

	// Soft 为 true 表示查询本身出错而非链上失败，调用方应稍后重试
	Soft bool `json:"soft,omitempty"`
}

// IsFinal 是否为最终状态
func (s Status) IsFinal() bool {
	return s.Status == StatusConfirmed || (s.Status == StatusFailed && !s.Soft)
}

// Tracker 交易确认跟踪器，只读且幂等
type Tracker struct {
	registry    *chain.Registry
	clients     chain.Source
	feeContract *contract.FeeContract
	cache       ReceiptCache
}

// Option 跟踪器选项
type Option func(*Tracker)

// WithCache 使用回执缓存
func WithCache(cache ReceiptCache) Option {
	return func(t *Tracker) {
		if cache != nil {
			t.cache = cache
		}
	}
}

// WithFeeContract 解析分账合约事件
func WithFeeContract(feeContract *contract.FeeContract) Option {
	return func(t *Tracker) {
		t.feeContract = feeContract
	}
}

// NewTracker 创建跟踪器
func NewTracker(registry *chain.Registry, clients chain.Source, opts ...Option) *Tracker {
	t := &Tracker{
		registry: registry,
		clients:  clients,
		cache:    noopCache{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetStatus 查询交易状态，仅在链不受支持时返回 error
func (t *Tracker) GetStatus(ctx context.Context, chainID int64, txHash common.Hash) (Status, error) {
	d, err := t.registry.GetChainDescriptor(chainID)
	if err != nil {
		return Status{}, err
	}

	client, err := t.clients.Client(ctx, chainID)
	if err != nil {
		return softFailure(err), nil
	}

	if cached, ok := t.cache.Get(ctx, chainID, txHash); ok {
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return softFailure(err), nil
		}
		return confirmed(cached, head), nil
	}

	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if isNotFound(err) {
			return Status{Status: StatusPending}, nil
		}
		logger.Warn("Receipt lookup for %s on chain %d failed: %v", txHash.Hex(), chainID, err)
		return softFailure(err), nil
	}
	if receipt == nil {
		return Status{Status: StatusPending}, nil
	}

	block := receipt.BlockNumber.Uint64()
	if receipt.Status == types.ReceiptStatusFailed {
		return Status{Status: StatusFailed, BlockNumber: &block, Error: revertedMessage}, nil
	}

	tx, _, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		if isNotFound(err) {
			return Status{Status: StatusPending}, nil
		}
		return softFailure(err), nil
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return softFailure(err), nil
	}

	record := CachedReceipt{BlockNumber: block, Value: tx.Value()}
	if t.feeContract != nil && d.HasFeeContract() {
		if events := t.feeContract.ParseSupportSent(*d.FeeContractAddress, receipt.Logs); len(events) > 0 {
			record.Delivered = events[0].Amount
		}
	}
	t.cache.Put(ctx, chainID, txHash, record)

	return confirmed(record, head), nil
}

func confirmed(record CachedReceipt, head uint64) Status {
	block := record.BlockNumber
	var confirmations uint64
	if head > block {
		confirmations = head - block
	}
	return Status{
		Status:          StatusConfirmed,
		BlockNumber:     &block,
		Confirmations:   &confirmations,
		ActualAmount:    record.Value,
		DeliveredAmount: record.Delivered,
	}
}

func softFailure(err error) Status {
	return Status{Status: StatusFailed, Error: err.Error(), Soft: true}
}

func isNotFound(err error) bool {
	if errors.Is(err, ethereum.NotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
