package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/contract"
	"github.com/Edcode-bot/gasmeup-sub000/internal/fee"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/Edcode-bot/gasmeup-sub000/internal/wallet"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// State 单次结算尝试的状态
type State int

const (
	StateIdle State = iota
	StateChainSwitching
	StateSubmitting
	StateSubmitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChainSwitching:
		return "chain_switching"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Intent 一次贡献意图，仅存在于内存中
type Intent struct {
	FromAddress common.Address
	ToAddress   common.Address
	GrossAmount *big.Int
	Message     string
	ChainID     int64
	ProjectID   *string
}

// Result 结算提交结果
type Result struct {
	TxHash         common.Hash
	ChainID        int64
	Path           chain.SettlementPath
	Split          fee.Split
	UncollectedFee *big.Int // 直接转账路径下未转出的手续费
}

// ViaContract 是否经由分账合约
func (r *Result) ViaContract() bool {
	_, ok := r.Path.(chain.ContractPath)
	return ok
}

// WalletChainSwitchError 用户拒绝或钱包无法切换/添加链
type WalletChainSwitchError struct {
	ChainID int64
	Err     error
}

func (e *WalletChainSwitchError) Error() string {
	return fmt.Sprintf("failed to switch wallet to chain %d: %v", e.ChainID, e.Err)
}

func (e *WalletChainSwitchError) Unwrap() error { return e.Err }

// ErrNoWallet 未配置签名钱包
var ErrNoWallet = errors.New("no wallet provider configured")

// SettlementError 链对齐后提交失败
type SettlementError struct {
	Reason string
	Err    error
}

func (e *SettlementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("settlement failed: %s: %v", e.Reason, e.Err)
	}
	return "settlement failed: " + e.Reason
}

func (e *SettlementError) Unwrap() error { return e.Err }

// Deps 结算依赖，显式传入以便替换
type Deps struct {
	Registry    *chain.Registry
	Wallet      wallet.Provider
	FeeContract *contract.FeeContract
	Clients     chain.Source
}

// Executor 结算执行器，每次调用互相独立。
// 钱包只有一个当前链，切链到提交之间必须串行
type Executor struct {
	deps Deps
	mu   sync.Mutex

	// OnTransition 可选的状态变更回调
	OnTransition func(intent Intent, state State)
}

// NewExecutor 创建结算执行器
func NewExecutor(deps Deps) *Executor {
	return &Executor{deps: deps}
}

// Sender 签名钱包地址，未配置钱包时返回 false
func (e *Executor) Sender() (common.Address, bool) {
	if e.deps.Wallet == nil {
		return common.Address{}, false
	}
	return e.deps.Wallet.Address(), true
}

type attempt struct {
	intent  Intent
	state   State
	observe func(Intent, State)
}

func (a *attempt) to(state State) {
	logger.Debug("Settlement attempt %s -> %s (chain %d, to %s)", a.state, state, a.intent.ChainID, a.intent.ToAddress.Hex())
	a.state = state
	if a.observe != nil {
		a.observe(a.intent, state)
	}
}

// Execute 提交一笔链上贡献并返回交易哈希，不做任何自动重试
func (e *Executor) Execute(ctx context.Context, intent Intent) (*Result, error) {
	a := &attempt{intent: intent, state: StateIdle, observe: e.OnTransition}

	path, err := e.deps.Registry.ResolvePath(intent.ChainID)
	if err != nil {
		a.to(StateFailed)
		return nil, err
	}
	if err := validate(intent); err != nil {
		a.to(StateFailed)
		return nil, err
	}

	if e.deps.Wallet == nil {
		a.to(StateFailed)
		return nil, ErrNoWallet
	}

	result, err := e.settle(ctx, a, path)
	if err != nil {
		a.to(StateFailed)
		return nil, err
	}

	a.to(StateSubmitted)
	logger.Info("Contribution submitted: tx %s on chain %d via %s path", result.TxHash.Hex(), result.ChainID, result.Path)
	return result, nil
}

// settle 对齐链并提交，持锁期间其他请求不能切换钱包
func (e *Executor) settle(ctx context.Context, a *attempt, path chain.SettlementPath) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a.to(StateChainSwitching)
	if err := e.alignChain(ctx, a.intent.ChainID); err != nil {
		return nil, err
	}

	a.to(StateSubmitting)
	return e.dispatch(ctx, a.intent, path)
}

func validate(intent Intent) error {
	if intent.GrossAmount == nil || intent.GrossAmount.Sign() <= 0 {
		return &SettlementError{Reason: "amount must be greater than zero"}
	}
	if intent.ToAddress == (common.Address{}) {
		return &SettlementError{Reason: "recipient address is empty"}
	}
	return nil
}

// alignChain 切换到目标链，钱包不认识该链时先添加再重试一次
func (e *Executor) alignChain(ctx context.Context, chainID int64) error {
	err := e.deps.Wallet.Request(ctx, wallet.MethodSwitchChain, wallet.SwitchChainRequest(chainID))
	if err == nil {
		return nil
	}
	if wallet.ErrorCode(err) != wallet.CodeUnrecognizedChain {
		return &WalletChainSwitchError{ChainID: chainID, Err: err}
	}

	d, err := e.deps.Registry.GetChainDescriptor(chainID)
	if err != nil {
		return err
	}

	logger.Info("Wallet does not know chain %d, requesting wallet_addEthereumChain", chainID)
	if err := e.deps.Wallet.Request(ctx, wallet.MethodAddChain, wallet.AddChainRequest(d)); err != nil {
		return &WalletChainSwitchError{ChainID: chainID, Err: err}
	}
	if err := e.deps.Wallet.Request(ctx, wallet.MethodSwitchChain, wallet.SwitchChainRequest(chainID)); err != nil {
		return &WalletChainSwitchError{ChainID: chainID, Err: err}
	}
	return nil
}

func (e *Executor) dispatch(ctx context.Context, intent Intent, path chain.SettlementPath) (*Result, error) {
	split := fee.ComputeSplit(intent.GrossAmount)
	result := &Result{ChainID: intent.ChainID, Path: path, Split: split}

	switch p := path.(type) {
	case chain.ContractPath:
		if e.deps.FeeContract == nil {
			return nil, &SettlementError{Reason: "fee contract ABI not loaded"}
		}
		hash, err := e.deps.Wallet.WriteContract(ctx, wallet.ContractCall{
			ChainID: intent.ChainID,
			Address: p.ContractAddress,
			ABI:     e.deps.FeeContract.ABI(),
			Method:  contract.MethodSupport,
			Args:    []interface{}{intent.ToAddress, intent.Message},
			Value:   new(big.Int).Set(intent.GrossAmount),
		})
		if err != nil {
			return nil, &SettlementError{Reason: reasonOf(err), Err: err}
		}
		result.TxHash = hash

	case chain.DirectPath:
		hash, err := e.deps.Wallet.SendTransaction(ctx, wallet.TxRequest{
			ChainID: intent.ChainID,
			To:      intent.ToAddress,
			Value:   split.NetAmount,
		})
		if err != nil {
			return nil, &SettlementError{Reason: reasonOf(err), Err: err}
		}
		result.TxHash = hash
		result.UncollectedFee = split.FeeAmount
		if split.FeeAmount.Sign() > 0 {
			logger.Warn("Direct transfer %s on chain %d withheld platform fee %s wei with no fee recipient",
				hash.Hex(), intent.ChainID, split.FeeAmount)
		}

	default:
		return nil, &SettlementError{Reason: fmt.Sprintf("unknown settlement path %T", path)}
	}

	return result, nil
}

func reasonOf(err error) string {
	switch {
	case wallet.ErrorCode(err) == wallet.CodeUserRejected:
		return "user rejected the transaction"
	case errors.Is(err, wallet.ErrNotConnected):
		return "wallet is not connected"
	case isInsufficientFunds(err):
		return "insufficient funds"
	default:
		return "transaction submission failed"
	}
}

func isInsufficientFunds(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}

// Cost 预估矿工费
type Cost struct {
	GasLimit uint64   `json:"gas_limit"`
	GasPrice *big.Int `json:"gas_price"`
	Fee      *big.Int `json:"fee"`
}

// EstimateCost 按结算路径构造调用，并发获取 gas 估算与 gas 价格
func (e *Executor) EstimateCost(ctx context.Context, intent Intent) (*Cost, error) {
	path, err := e.deps.Registry.ResolvePath(intent.ChainID)
	if err != nil {
		return nil, err
	}
	if err := validate(intent); err != nil {
		return nil, err
	}
	msg, err := e.callMsg(intent, path)
	if err != nil {
		return nil, err
	}

	client, err := e.deps.Clients.Client(ctx, intent.ChainID)
	if err != nil {
		return nil, err
	}

	var (
		gasLimit uint64
		gasPrice *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		gasLimit, err = client.EstimateGas(gctx, msg)
		if err != nil {
			return fmt.Errorf("failed to estimate gas: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		gasPrice, err = client.SuggestGasPrice(gctx)
		if err != nil {
			return fmt.Errorf("failed to get gas price: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Cost{
		GasLimit: gasLimit,
		GasPrice: gasPrice,
		Fee:      new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice),
	}, nil
}

func (e *Executor) callMsg(intent Intent, path chain.SettlementPath) (ethereum.CallMsg, error) {
	msg := ethereum.CallMsg{From: intent.FromAddress}

	switch p := path.(type) {
	case chain.ContractPath:
		if e.deps.FeeContract == nil {
			return msg, &SettlementError{Reason: "fee contract ABI not loaded"}
		}
		feeABI := e.deps.FeeContract.ABI()
		data, err := feeABI.Pack(contract.MethodSupport, intent.ToAddress, intent.Message)
		if err != nil {
			return msg, fmt.Errorf("failed to pack support call: %w", err)
		}
		to := p.ContractAddress
		msg.To = &to
		msg.Data = data
		msg.Value = new(big.Int).Set(intent.GrossAmount)
	default:
		to := intent.ToAddress
		msg.To = &to
		msg.Value = fee.ComputeNet(intent.GrossAmount)
	}
	return msg, nil
}
