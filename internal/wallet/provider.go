package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EIP-1193 / EIP-3085 方法名
const (
	MethodSwitchChain = "wallet_switchEthereumChain"
	MethodAddChain    = "wallet_addEthereumChain"
)

// 钱包提供方错误码
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// Provider EIP-1193 风格的钱包提供方
type Provider interface {
	Address() common.Address
	Request(ctx context.Context, method string, params interface{}) error
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	WriteContract(ctx context.Context, call ContractCall) (common.Hash, error)
}

// TxRequest 原生代币转账
type TxRequest struct {
	// ChainID 签名与广播使用的链，0 表示钱包当前链
	ChainID int64
	To      common.Address
	Value   *big.Int
}

// ContractCall 附带原生代币的合约写调用
type ContractCall struct {
	// ChainID 签名与广播使用的链，0 表示钱包当前链
	ChainID int64
	Address common.Address
	ABI     abi.ABI
	Method  string
	Args    []interface{}
	Value   *big.Int
}

// ProviderError 钱包提供方返回的错误
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet provider error %d: %s", e.Code, e.Message)
}

// ErrorCode 提取提供方错误码，非提供方错误返回 0
func ErrorCode(err error) int {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Code
	}
	return 0
}

// SwitchChainParams wallet_switchEthereumChain 参数
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// NativeCurrency 原生代币信息
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// AddChainParams wallet_addEthereumChain 参数
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

// HexChainID 十进制链ID转 0x 十六进制
func HexChainID(chainID int64) string {
	return "0x" + strconv.FormatInt(chainID, 16)
}

// ParseHexChainID 解析 0x 十六进制链ID
func ParseHexChainID(hex string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(hex), "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", hex, err)
	}
	return id, nil
}

// SwitchChainRequest 构造切换链请求参数
func SwitchChainRequest(chainID int64) []SwitchChainParams {
	return []SwitchChainParams{{ChainID: HexChainID(chainID)}}
}

// AddChainRequest 使用注册表元数据构造添加链请求参数
func AddChainRequest(d chain.Descriptor) []AddChainParams {
	return []AddChainParams{{
		ChainID:   HexChainID(d.ChainID),
		ChainName: d.Name,
		NativeCurrency: NativeCurrency{
			Name:     d.NativeCurrencySymbol,
			Symbol:   d.NativeCurrencySymbol,
			Decimals: 18,
		},
		RPCURLs:           []string{d.RPCURL},
		BlockExplorerURLs: []string{d.ExplorerBaseURL},
	}}
}
