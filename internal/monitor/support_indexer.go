package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/config"
	"github.com/Edcode-bot/gasmeup-sub000/internal/contract"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"github.com/Edcode-bot/gasmeup-sub000/internal/repository"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
)

const defaultBlockRange uint64 = 500

// SupportStore 贡献记录存储
type SupportStore interface {
	Create(ctx context.Context, support *model.SupportModel) error
	FindByTxHash(ctx context.Context, chainID int64, txHash string) (*model.SupportModel, error)
}

// CursorStore 索引进度存储
type CursorStore interface {
	Get(ctx context.Context, chainID int64) (uint64, bool, error)
	Save(ctx context.Context, chainID int64, block uint64) error
}

// ChainProgress 单链索引进度
type ChainProgress struct {
	ChainID   int64  `json:"chain_id"`
	LastBlock uint64 `json:"last_block"`
	Indexed   int    `json:"indexed"`
}

// SupportIndexer 扫描分账合约的 SupportSent 事件，补录未经本服务提交的贡献
type SupportIndexer struct {
	registry    *chain.Registry
	clients     chain.Source
	feeContract *contract.FeeContract
	supports    SupportStore
	cursors     CursorStore
	config      config.TaskConfig
	blockRange  uint64

	mu       sync.RWMutex
	progress map[int64]ChainProgress
}

// NewSupportIndexer 创建事件索引器
func NewSupportIndexer(
	registry *chain.Registry,
	clients chain.Source,
	feeContract *contract.FeeContract,
	supports SupportStore,
	cursors CursorStore,
	cfg config.TaskConfig,
) *SupportIndexer {
	blockRange := cfg.IndexBlockRange
	if blockRange == 0 {
		blockRange = defaultBlockRange
	}
	return &SupportIndexer{
		registry:    registry,
		clients:     clients,
		feeContract: feeContract,
		supports:    supports,
		cursors:     cursors,
		config:      cfg,
		blockRange:  blockRange,
		progress:    make(map[int64]ChainProgress),
	}
}

// GetName 获取任务名称
func (x *SupportIndexer) GetName() string {
	return "support_indexer"
}

// GetSchedule 获取调度配置
func (x *SupportIndexer) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(x.config.IndexEvery())
}

// Execute 执行任务
func (x *SupportIndexer) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), x.config.IndexEvery()+time.Minute)
	defer cancel()

	indexed, err := x.RunOnce(ctx)
	if err != nil {
		logger.Error("Support indexing failed: %v", err)
		return
	}
	if indexed > 0 {
		logger.Info("Support indexing completed. Indexed %d supports", indexed)
	}
}

// RunOnce 对所有部署了分账合约的链扫描一轮，返回新补录的记录数
func (x *SupportIndexer) RunOnce(ctx context.Context) (int, error) {
	var targets []chain.Descriptor
	for _, d := range x.registry.Descriptors() {
		if d.HasFeeContract() {
			targets = append(targets, d)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	// 每条链一个协程
	pool, err := ants.NewPool(len(targets))
	if err != nil {
		return 0, fmt.Errorf("failed to create pool for %d chains: %w", len(targets), err)
	}
	defer pool.Release()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		errs  []error
	)
	for _, d := range targets {
		d := d
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			n, err := x.indexChain(ctx, d)

			mu.Lock()
			defer mu.Unlock()
			total += n
			if err != nil {
				errs = append(errs, fmt.Errorf("chain %d: %w", d.ChainID, err))
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit indexing task for chain %d: %v", d.ChainID, err)
		}
	}
	wg.Wait()

	return total, errors.Join(errs...)
}

// indexChain 从游标处分批扫描到最新区块
func (x *SupportIndexer) indexChain(ctx context.Context, d chain.Descriptor) (int, error) {
	client, err := x.clients.Client(ctx, d.ChainID)
	if err != nil {
		return 0, err
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current block number: %w", err)
	}

	from, err := x.startBlock(ctx, d, head)
	if err != nil {
		return 0, err
	}
	if from > head {
		return 0, nil
	}

	indexed := 0
	for batchFrom := from; batchFrom <= head; batchFrom += x.blockRange {
		batchTo := batchFrom + x.blockRange - 1
		if batchTo > head {
			batchTo = head
		}

		n, err := x.indexRange(ctx, client, d, batchFrom, batchTo)
		indexed += n
		if err != nil {
			if isRateLimitError(err) {
				logger.Warn("RPC rate limit hit on chain %d at blocks %d-%d, resuming next run", d.ChainID, batchFrom, batchTo)
				return indexed, nil
			}
			return indexed, fmt.Errorf("blocks %d-%d: %w", batchFrom, batchTo, err)
		}

		if err := x.cursors.Save(ctx, d.ChainID, batchTo); err != nil {
			return indexed, fmt.Errorf("failed to save cursor: %w", err)
		}
		x.record(d.ChainID, batchTo, n)
	}
	return indexed, nil
}

// startBlock 起始区块：游标的下一个，没有游标时取部署区块，部署区块未配置时从最新区块开始
func (x *SupportIndexer) startBlock(ctx context.Context, d chain.Descriptor, head uint64) (uint64, error) {
	last, ok, err := x.cursors.Get(ctx, d.ChainID)
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}
	if ok {
		return last + 1, nil
	}
	if d.DeployBlock > 0 {
		return d.DeployBlock, nil
	}
	logger.Info("No deploy block configured for chain %d, indexing from head %d", d.ChainID, head)
	return head, nil
}

func (x *SupportIndexer) indexRange(ctx context.Context, client chain.Client, d chain.Descriptor, from, to uint64) (int, error) {
	address := *d.FeeContractAddress
	event := x.feeContract.ABI().Events[contract.EventSupportSent]

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return 0, err
	}
	if len(logs) == 0 {
		return 0, nil
	}

	refs := make([]*types.Log, len(logs))
	blocks := make(map[common.Hash]uint64, len(logs))
	for i := range logs {
		refs[i] = &logs[i]
		blocks[logs[i].TxHash] = logs[i].BlockNumber
	}

	indexed := 0
	for _, ev := range x.feeContract.ParseSupportSent(address, refs) {
		created, err := x.ingest(ctx, d.ChainID, ev, blocks[ev.TxHash])
		if err != nil {
			return indexed, err
		}
		if created {
			indexed++
		}
	}
	return indexed, nil
}

// ingest 补录一条事件，已存在的交易跳过；记录以 pending 写入，由对账任务确认
func (x *SupportIndexer) ingest(ctx context.Context, chainID int64, ev contract.SupportSent, block uint64) (bool, error) {
	if ev.Amount == nil {
		return false, nil
	}

	txHash := ev.TxHash.Hex()
	_, err := x.supports.FindByTxHash(ctx, chainID, txHash)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrRecordNotFound) {
		return false, err
	}

	blockNum := int64(block)
	support := &model.SupportModel{
		FromAddress: ev.Supporter.Hex(),
		ToAddress:   ev.Builder.Hex(),
		NetAmount:   decimal.NewFromBigInt(ev.Amount, 0),
		ChainId:     chainID,
		TxHash:      txHash,
		ViaContract: true,
		BlockNum:    &blockNum,
	}
	if ev.Message != "" {
		message := ev.Message
		support.Message = &message
	}

	if err := x.supports.Create(ctx, support); err != nil {
		if errors.Is(err, repository.ErrDuplicateSupport) {
			return false, nil
		}
		return false, err
	}
	logger.Debug("Indexed support %s on chain %d at block %d", txHash, chainID, block)
	return true, nil
}

func (x *SupportIndexer) record(chainID int64, block uint64, indexed int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	p := x.progress[chainID]
	p.ChainID = chainID
	p.LastBlock = block
	p.Indexed += indexed
	x.progress[chainID] = p
}

// Progress 获取各链索引进度
func (x *SupportIndexer) Progress() []ChainProgress {
	x.mu.RLock()
	defer x.mu.RUnlock()
	list := make([]ChainProgress, 0, len(x.progress))
	for _, d := range x.registry.Descriptors() {
		if p, ok := x.progress[d.ChainID]; ok {
			list = append(list, p)
		}
	}
	return list
}

// isRateLimitError 检查是否为RPC限流错误
func isRateLimitError(err error) bool {
	return strings.Contains(err.Error(), "Too Many Requests") || strings.Contains(err.Error(), "429")
}
