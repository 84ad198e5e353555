package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNotConnected 钱包尚未连接任何链
var ErrNotConnected = errors.New("wallet is not connected to any chain")

// KeyedWallet 服务端私钥钱包，行为与浏览器注入钱包一致：
// 只认识已连接或已添加的链，未知链切换返回 4902。
// 交易按请求携带的链ID选择客户端和签名器，不受之后的切链影响
type KeyedWallet struct {
	mu      sync.Mutex
	sendMu  sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	dialer  chain.Dialer
	chains  map[int64]chain.Client
	current int64
}

// NewKeyedWallet 从十六进制私钥创建钱包
func NewKeyedWallet(privateKeyHex string, dialer chain.Dialer) (*KeyedWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &KeyedWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		dialer:  dialer,
		chains:  make(map[int64]chain.Client),
	}, nil
}

// Address 钱包地址
func (w *KeyedWallet) Address() common.Address {
	return w.address
}

// Connect 连接到指定RPC并设为当前链
func (w *KeyedWallet) Connect(ctx context.Context, rpcURL string) error {
	client, chainID, err := w.dialChain(ctx, rpcURL)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.chains[chainID] = client
	w.current = chainID
	logger.Info("Wallet %s connected to chain %d", w.address.Hex(), chainID)
	return nil
}

// CurrentChain 当前链ID，未连接返回 0
func (w *KeyedWallet) CurrentChain() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Request 处理 wallet_switchEthereumChain / wallet_addEthereumChain
func (w *KeyedWallet) Request(ctx context.Context, method string, params interface{}) error {
	switch method {
	case MethodSwitchChain:
		list, ok := params.([]SwitchChainParams)
		if !ok || len(list) == 0 {
			return &ProviderError{Code: -32602, Message: "invalid switch chain params"}
		}
		chainID, err := ParseHexChainID(list[0].ChainID)
		if err != nil {
			return &ProviderError{Code: -32602, Message: err.Error()}
		}
		return w.switchChain(chainID)

	case MethodAddChain:
		list, ok := params.([]AddChainParams)
		if !ok || len(list) == 0 || len(list[0].RPCURLs) == 0 {
			return &ProviderError{Code: -32602, Message: "invalid add chain params"}
		}
		return w.addChain(ctx, list[0])

	default:
		return &ProviderError{Code: 4200, Message: fmt.Sprintf("unsupported method %s", method)}
	}
}

func (w *KeyedWallet) switchChain(chainID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.chains[chainID]; !ok {
		return &ProviderError{
			Code:    CodeUnrecognizedChain,
			Message: fmt.Sprintf("Unrecognized chain ID %s. Try adding the chain using wallet_addEthereumChain first.", HexChainID(chainID)),
		}
	}
	w.current = chainID
	return nil
}

func (w *KeyedWallet) addChain(ctx context.Context, params AddChainParams) error {
	want, err := ParseHexChainID(params.ChainID)
	if err != nil {
		return &ProviderError{Code: -32602, Message: err.Error()}
	}

	client, got, err := w.dialChain(ctx, params.RPCURLs[0])
	if err != nil {
		return err
	}
	if got != want {
		return &ProviderError{
			Code:    -32602,
			Message: fmt.Sprintf("RPC endpoint returned chain id %d, expected %d", got, want),
		}
	}

	w.mu.Lock()
	w.chains[want] = client
	w.mu.Unlock()

	logger.Info("Wallet added chain %s (%d)", params.ChainName, want)
	return nil
}

func (w *KeyedWallet) dialChain(ctx context.Context, rpcURL string) (chain.Client, int64, error) {
	client, err := w.dialer.Dial(ctx, rpcURL)
	if err != nil {
		return nil, 0, err
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read chain id from %s: %w", rpcURL, err)
	}
	return client, id.Int64(), nil
}

// clientFor 按链ID取客户端，0 表示当前链
func (w *KeyedWallet) clientFor(chainID int64) (chain.Client, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.chains) == 0 {
		return nil, 0, ErrNotConnected
	}
	if chainID == 0 {
		chainID = w.current
	}
	client, ok := w.chains[chainID]
	if !ok {
		return nil, 0, &ProviderError{
			Code:    CodeUnrecognizedChain,
			Message: fmt.Sprintf("Unrecognized chain ID %s", HexChainID(chainID)),
		}
	}
	return client, chainID, nil
}

// SendTransaction 签名并广播原生代币转账
func (w *KeyedWallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	client, chainID, err := w.clientFor(req.ChainID)
	if err != nil {
		return common.Hash{}, err
	}

	// 同一账户的 nonce 读取到广播必须串行
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	nonce, err := client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	to := req.To
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Value: req.Value})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    req.Value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainID)), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// WriteContract 签名并广播附带原生代币的合约调用
func (w *KeyedWallet) WriteContract(ctx context.Context, call ContractCall) (common.Hash, error) {
	client, chainID, err := w.clientFor(call.ChainID)
	if err != nil {
		return common.Hash{}, err
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(w.key, big.NewInt(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = call.Value

	bound := bind.NewBoundContract(call.Address, call.ABI, client, client, client)
	tx, err := bound.Transact(opts, call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}
