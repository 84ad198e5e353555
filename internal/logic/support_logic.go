package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/fee"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"github.com/Edcode-bot/gasmeup-sub000/internal/settlement"
	"github.com/Edcode-bot/gasmeup-sub000/internal/tracker"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// ValidationError 请求参数错误
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrSettlementDisabled 服务端未配置签名钱包
var ErrSettlementDisabled = errors.New("server-side settlement is disabled: no wallet configured")

// SupportStore 贡献记录存储
type SupportStore interface {
	Create(ctx context.Context, support *model.SupportModel) error
	FindByTxHash(ctx context.Context, chainID int64, txHash string) (*model.SupportModel, error)
	ListPending(ctx context.Context, limit int) ([]model.SupportModel, error)
	UpdateStatus(ctx context.Context, id string, status model.SupportStatus, blockNum, confirmations *int64) (bool, error)
	ListByToAddress(ctx context.Context, address string, page, pageSize int) ([]model.SupportModel, int64, error)
	ListByFromAddress(ctx context.Context, address string, page, pageSize int) ([]model.SupportModel, int64, error)
	ListByProject(ctx context.Context, projectID string, page, pageSize int) ([]model.SupportModel, int64, error)
}

// NotificationStore 通知存储
type NotificationStore interface {
	Create(ctx context.Context, notification *model.NotificationModel) error
}

// Settler 结算执行
type Settler interface {
	Execute(ctx context.Context, intent settlement.Intent) (*settlement.Result, error)
	EstimateCost(ctx context.Context, intent settlement.Intent) (*settlement.Cost, error)
	Sender() (common.Address, bool)
}

// StatusReader 交易状态查询
type StatusReader interface {
	GetStatus(ctx context.Context, chainID int64, txHash common.Hash) (tracker.Status, error)
}

// FeeQuoter 链上手续费报价
type FeeQuoter interface {
	ComputeContractFee(ctx context.Context, gross *big.Int, chainID int64) *fee.Split
}

// DefaultMinConfirmations 确认落库所需的最少确认数
const DefaultMinConfirmations uint64 = 1

// SupportLogic 贡献业务逻辑
type SupportLogic struct {
	registry      *chain.Registry
	settler       Settler
	quoter        FeeQuoter
	status        StatusReader
	supports      SupportStore
	notifications NotificationStore

	minConfirmations uint64
}

// NewSupportLogic 创建贡献业务逻辑
func NewSupportLogic(registry *chain.Registry, settler Settler, quoter FeeQuoter, status StatusReader, supports SupportStore, notifications NotificationStore) *SupportLogic {
	return &SupportLogic{
		registry:      registry,
		settler:       settler,
		quoter:        quoter,
		status:        status,
		supports:      supports,
		notifications: notifications,

		minConfirmations: DefaultMinConfirmations,
	}
}

// SetMinConfirmations 设置确认落库所需的最少确认数，0 表示上链即确认
func (l *SupportLogic) SetMinConfirmations(n uint64) {
	l.minConfirmations = n
}

// PreviewRequest 手续费预览请求
type PreviewRequest struct {
	ChainID     int64
	Amount      string // 十进制整币金额，如 "10.0"
	FromAddress string
	ToAddress   string
	Message     string
}

// Amounts 一组金额，同时给出 wei 和格式化值
type Amounts struct {
	Gross        string `json:"gross"`
	Fee          string `json:"fee"`
	Net          string `json:"net"`
	GrossDisplay string `json:"gross_display"`
	FeeDisplay   string `json:"fee_display"`
	NetDisplay   string `json:"net_display"`
}

// Preview 手续费预览
type Preview struct {
	ChainID       int64            `json:"chain_id"`
	Symbol        string           `json:"symbol"`
	Path          string           `json:"path"`
	ViaContract   bool             `json:"via_contract"`
	Amounts       Amounts          `json:"amounts"`
	ContractQuote *Amounts         `json:"contract_quote,omitempty"`
	QuoteMismatch bool             `json:"quote_mismatch,omitempty"`
	GasEstimate   *settlement.Cost `json:"gas_estimate,omitempty"`
}

func amountsOf(gross *big.Int, split fee.Split, decimals uint8) Amounts {
	return Amounts{
		Gross:        gross.String(),
		Fee:          split.FeeAmount.String(),
		Net:          split.NetAmount.String(),
		GrossDisplay: fee.FormatUnits(gross, decimals),
		FeeDisplay:   fee.FormatUnits(split.FeeAmount, decimals),
		NetDisplay:   fee.FormatUnits(split.NetAmount, decimals),
	}
}

// Preview 计算手续费拆分，合约可用时同时给出链上报价，gas 估算尽力而为
func (l *SupportLogic) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	d, err := l.registry.GetChainDescriptor(req.ChainID)
	if err != nil {
		return nil, err
	}
	gross, err := parseAmount(req.Amount, d.NativeCurrencyDecimals)
	if err != nil {
		return nil, err
	}
	path, err := l.registry.ResolvePath(req.ChainID)
	if err != nil {
		return nil, err
	}

	split := fee.ComputeSplit(gross)
	preview := &Preview{
		ChainID:     d.ChainID,
		Symbol:      d.NativeCurrencySymbol,
		Path:        path.String(),
		ViaContract: d.HasFeeContract(),
		Amounts:     amountsOf(gross, split, d.NativeCurrencyDecimals),
	}

	if l.quoter != nil {
		if quote := l.quoter.ComputeContractFee(ctx, gross, req.ChainID); quote != nil {
			amounts := amountsOf(gross, *quote, d.NativeCurrencyDecimals)
			preview.ContractQuote = &amounts
			if !quote.Equal(split) {
				preview.QuoteMismatch = true
				logger.Error("Fee contract quote on chain %d disagrees with local split: contract fee %s, local fee %s",
					req.ChainID, quote.FeeAmount, split.FeeAmount)
			}
		}
	}

	if l.settler != nil && common.IsHexAddress(req.ToAddress) {
		from := common.HexToAddress(req.FromAddress)
		if !common.IsHexAddress(req.FromAddress) {
			from, _ = l.settler.Sender()
		}
		cost, err := l.settler.EstimateCost(ctx, settlement.Intent{
			FromAddress: from,
			ToAddress:   common.HexToAddress(req.ToAddress),
			GrossAmount: gross,
			Message:     req.Message,
			ChainID:     req.ChainID,
		})
		if err != nil {
			logger.Debug("Gas estimate unavailable for chain %d: %v", req.ChainID, err)
		} else {
			preview.GasEstimate = cost
		}
	}

	return preview, nil
}

// SubmitRequest 提交贡献请求
type SubmitRequest struct {
	ToAddress string
	Amount    string
	Message   string
	ChainID   int64
	ProjectID *string
}

// SubmitResult 提交结果
type SubmitResult struct {
	TxHash         string              `json:"tx_hash"`
	ChainID        int64               `json:"chain_id"`
	Path           string              `json:"path"`
	ExplorerURL    string              `json:"explorer_url"`
	Amounts        Amounts             `json:"amounts"`
	UncollectedFee string              `json:"uncollected_fee,omitempty"`
	Support        *model.SupportModel `json:"support,omitempty"`
}

// Submit 执行结算并记录 pending 贡献；交易已广播后记录或通知失败只记日志
func (l *SupportLogic) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if l.settler == nil {
		return nil, ErrSettlementDisabled
	}
	from, ok := l.settler.Sender()
	if !ok {
		return nil, ErrSettlementDisabled
	}

	d, err := l.registry.GetChainDescriptor(req.ChainID)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(req.ToAddress) {
		return nil, &ValidationError{Field: "to_address", Reason: "not a valid address"}
	}
	to := common.HexToAddress(req.ToAddress)
	if to == (common.Address{}) {
		return nil, &ValidationError{Field: "to_address", Reason: "zero address"}
	}
	gross, err := parseAmount(req.Amount, d.NativeCurrencyDecimals)
	if err != nil {
		return nil, err
	}
	if gross.Sign() == 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	result, err := l.settler.Execute(ctx, settlement.Intent{
		FromAddress: from,
		ToAddress:   to,
		GrossAmount: gross,
		Message:     req.Message,
		ChainID:     req.ChainID,
		ProjectID:   req.ProjectID,
	})
	if err != nil {
		return nil, err
	}

	txHash := result.TxHash.Hex()
	explorerURL, _ := l.registry.ExplorerTxURL(req.ChainID, txHash)
	out := &SubmitResult{
		TxHash:      txHash,
		ChainID:     req.ChainID,
		Path:        result.Path.String(),
		ExplorerURL: explorerURL,
		Amounts:     amountsOf(gross, result.Split, d.NativeCurrencyDecimals),
	}
	if result.UncollectedFee != nil {
		out.UncollectedFee = result.UncollectedFee.String()
	}

	record := &model.SupportModel{
		FromAddress: from.Hex(),
		ToAddress:   to.Hex(),
		NetAmount:   decimal.NewFromBigInt(fee.ComputeNet(gross), 0),
		TxHash:      txHash,
		ChainId:     req.ChainID,
		ProjectId:   req.ProjectID,
		ViaContract: result.ViaContract(),
	}
	if req.Message != "" {
		message := req.Message
		record.Message = &message
	}

	if err := l.supports.Create(ctx, record); err != nil {
		logger.Error("Failed to record support %s on chain %d: %v", txHash, req.ChainID, err)
		return out, nil
	}
	out.Support = record

	l.notify(ctx, record, d, explorerURL)
	return out, nil
}

func (l *SupportLogic) notify(ctx context.Context, record *model.SupportModel, d chain.Descriptor, link string) {
	if l.notifications == nil {
		return
	}

	kind := model.NotificationContribution
	if record.ProjectId != nil {
		kind = model.NotificationProjectContribution
	}
	notification := &model.NotificationModel{
		UserAddress: record.ToAddress,
		Type:        kind,
		Title:       "New Contribution Received",
		Message: fmt.Sprintf("You received %s %s from %s",
			fee.FormatUnits(record.NetAmount.BigInt(), d.NativeCurrencyDecimals), d.NativeCurrencySymbol, shortAddress(record.FromAddress)),
		Link: link,
	}
	if err := l.notifications.Create(ctx, notification); err != nil {
		logger.Warn("Failed to create notification for %s: %v", record.ToAddress, err)
	}
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	Status  tracker.Status      `json:"status"`
	Updated bool                `json:"updated"`
	Support *model.SupportModel `json:"support"`

	// AmountMismatch 链上到账金额与记录的净额不一致
	AmountMismatch bool `json:"amount_mismatch,omitempty"`
}

// Reconcile 重新查询链上状态，仅在得到最终结论且确认数足够时落库
func (l *SupportLogic) Reconcile(ctx context.Context, record *model.SupportModel) (*ReconcileResult, error) {
	status, err := l.status.GetStatus(ctx, record.ChainId, common.HexToHash(record.TxHash))
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Status: status, Support: record}
	if status.Status == tracker.StatusConfirmed {
		result.AmountMismatch = amountMismatch(record, status)
	}
	if record.IsFinal() || !status.IsFinal() {
		return result, nil
	}
	if status.Status == tracker.StatusConfirmed && !l.deepEnough(status) {
		logger.Debug("Support %s on chain %d is mined but not yet %d blocks deep", record.TxHash, record.ChainId, l.minConfirmations)
		return result, nil
	}

	next := model.SupportStatusConfirmed
	if status.Status == tracker.StatusFailed {
		next = model.SupportStatusFailed
	}
	blockNum := toInt64(status.BlockNumber)
	confirmations := toInt64(status.Confirmations)

	updated, err := l.supports.UpdateStatus(ctx, record.Id, next, blockNum, confirmations)
	if err != nil {
		return nil, fmt.Errorf("failed to update support %s: %w", record.Id, err)
	}
	if updated {
		record.Status = next
		record.BlockNum = blockNum
		record.Confirmations = confirmations
		logger.Info("Support %s on chain %d is %s", record.TxHash, record.ChainId, next)
	}
	result.Updated = updated
	return result, nil
}

func (l *SupportLogic) deepEnough(status tracker.Status) bool {
	if l.minConfirmations == 0 {
		return true
	}
	return status.Confirmations != nil && *status.Confirmations >= l.minConfirmations
}

// amountMismatch 合约路径比较 SupportSent 中的金额，直接转账比较交易金额
func amountMismatch(record *model.SupportModel, status tracker.Status) bool {
	onChain := status.ActualAmount
	if record.ViaContract {
		onChain = status.DeliveredAmount
	}
	if onChain == nil {
		return false
	}

	expected := record.NetAmount.BigInt()
	if onChain.Cmp(expected) == 0 {
		return false
	}
	logger.Error("Support %s on chain %d recorded net %s wei but chain shows %s wei",
		record.TxHash, record.ChainId, expected, onChain)
	return true
}

// ReconcileTx 按交易哈希对账
func (l *SupportLogic) ReconcileTx(ctx context.Context, chainID int64, txHash string) (*ReconcileResult, error) {
	if _, err := l.registry.GetChainDescriptor(chainID); err != nil {
		return nil, err
	}
	record, err := l.supports.FindByTxHash(ctx, chainID, txHash)
	if err != nil {
		return nil, err
	}
	return l.Reconcile(ctx, record)
}

// PendingSupports 待对账记录
func (l *SupportLogic) PendingSupports(ctx context.Context, limit int) ([]model.SupportModel, error) {
	return l.supports.ListPending(ctx, limit)
}

// Receipt 交易回执视图
type Receipt struct {
	ChainID     int64               `json:"chain_id"`
	TxHash      string              `json:"tx_hash"`
	Status      tracker.Status      `json:"status"`
	ExplorerURL string              `json:"explorer_url"`
	Support     *model.SupportModel `json:"support,omitempty"`
}

// Receipt 查询链上状态、浏览器链接以及已记录的贡献
func (l *SupportLogic) Receipt(ctx context.Context, chainID int64, txHash string) (*Receipt, error) {
	if !isTxHash(txHash) {
		return nil, &ValidationError{Field: "tx_hash", Reason: "must be a 0x-prefixed 32 byte hex string"}
	}
	status, err := l.status.GetStatus(ctx, chainID, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	explorerURL, err := l.registry.ExplorerTxURL(chainID, strings.ToLower(txHash))
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ChainID:     chainID,
		TxHash:      strings.ToLower(txHash),
		Status:      status,
		ExplorerURL: explorerURL,
	}
	record, err := l.supports.FindByTxHash(ctx, chainID, txHash)
	if err == nil {
		receipt.Support = record
	}
	return receipt, nil
}

// ListReceived builder 收到的贡献
func (l *SupportLogic) ListReceived(ctx context.Context, address string, page, pageSize int) ([]model.SupportModel, int64, error) {
	if !common.IsHexAddress(address) {
		return nil, 0, &ValidationError{Field: "address", Reason: "not a valid address"}
	}
	return l.supports.ListByToAddress(ctx, address, page, pageSize)
}

// ListSent supporter 发出的贡献
func (l *SupportLogic) ListSent(ctx context.Context, address string, page, pageSize int) ([]model.SupportModel, int64, error) {
	if !common.IsHexAddress(address) {
		return nil, 0, &ValidationError{Field: "address", Reason: "not a valid address"}
	}
	return l.supports.ListByFromAddress(ctx, address, page, pageSize)
}

// ListByProject 项目收到的贡献
func (l *SupportLogic) ListByProject(ctx context.Context, projectID string, page, pageSize int) ([]model.SupportModel, int64, error) {
	return l.supports.ListByProject(ctx, projectID, page, pageSize)
}

func parseAmount(amount string, decimals uint8) (*big.Int, error) {
	if strings.TrimSpace(amount) == "" {
		return nil, &ValidationError{Field: "amount", Reason: "required"}
	}
	gross, err := fee.ParseUnits(strings.TrimSpace(amount), decimals)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Reason: err.Error()}
	}
	return gross, nil
}

func isTxHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}

func toInt64(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func shortAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
