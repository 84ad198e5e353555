package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Edcode-bot/gasmeup-sub000/internal/config"
	"github.com/ethereum/go-ethereum/common"
)

const (
	CeloChainID int64 = 42220
	BaseChainID int64 = 8453
)

// Descriptor 链描述，启动后不可变
type Descriptor struct {
	ChainID                int64           `json:"chain_id"`
	Key                    string          `json:"key"`
	Name                   string          `json:"name"`
	NativeCurrencySymbol   string          `json:"native_currency_symbol"`
	NativeCurrencyDecimals uint8           `json:"native_currency_decimals"`
	RPCURL                 string          `json:"rpc_url"`
	ExplorerBaseURL        string          `json:"explorer_base_url"`
	FeeContractAddress     *common.Address `json:"fee_contract_address,omitempty"`
	DeployBlock            uint64          `json:"-"`
}

// HasFeeContract 是否部署了分账合约
func (d Descriptor) HasFeeContract() bool {
	return d.FeeContractAddress != nil
}

// 固定支持的链列表，合约地址由配置叠加
var supportedChains = []Descriptor{
	{
		ChainID:                CeloChainID,
		Key:                    "celo",
		Name:                   "Celo",
		NativeCurrencySymbol:   "CELO",
		NativeCurrencyDecimals: 18,
		RPCURL:                 "https://forno.celo.org",
		ExplorerBaseURL:        "https://celoscan.io",
	},
	{
		ChainID:                BaseChainID,
		Key:                    "base",
		Name:                   "Base",
		NativeCurrencySymbol:   "ETH",
		NativeCurrencyDecimals: 18,
		RPCURL:                 "https://mainnet.base.org",
		ExplorerBaseURL:        "https://basescan.org",
	},
}

// UnsupportedChainError 请求的链不在注册表中
type UnsupportedChainError struct {
	ChainID int64
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("unsupported chain id %d", e.ChainID)
}

// SettlementPath 结算路径: ContractPath 或 DirectPath
type SettlementPath interface {
	isSettlementPath()
	String() string
}

// ContractPath 通过分账合约结算
type ContractPath struct {
	ContractAddress common.Address
}

func (ContractPath) isSettlementPath() {}

func (p ContractPath) String() string { return "contract" }

// DirectPath 直接转账结算
type DirectPath struct{}

func (DirectPath) isSettlementPath() {}

func (DirectPath) String() string { return "direct" }

// Registry 链注册表
type Registry struct {
	chains map[int64]Descriptor
}

// NewRegistry 使用配置覆盖创建注册表，配置键为链名称
func NewRegistry(overrides map[string]config.ChainConfig) (*Registry, error) {
	chains := make(map[int64]Descriptor, len(supportedChains))
	for _, d := range supportedChains {
		override, ok := overrides[d.Key]
		if ok {
			if override.RpcUrl != "" {
				d.RPCURL = override.RpcUrl
			}
			if addr := strings.TrimSpace(override.FeeContract); addr != "" {
				if !common.IsHexAddress(addr) {
					return nil, fmt.Errorf("invalid fee contract address for %s: %q", d.Key, addr)
				}
				contractAddr := common.HexToAddress(addr)
				d.FeeContractAddress = &contractAddr
				d.DeployBlock = override.StartBlock
			}
		}
		chains[d.ChainID] = d
	}

	for key := range overrides {
		if !isKnownKey(key) {
			return nil, fmt.Errorf("unknown chain %q in configuration", key)
		}
	}

	return &Registry{chains: chains}, nil
}

func isKnownKey(key string) bool {
	for _, d := range supportedChains {
		if d.Key == key {
			return true
		}
	}
	return false
}

// GetChainDescriptor 获取链描述
func (r *Registry) GetChainDescriptor(chainID int64) (Descriptor, error) {
	d, ok := r.chains[chainID]
	if !ok {
		return Descriptor{}, &UnsupportedChainError{ChainID: chainID}
	}
	return d, nil
}

// IsContractPathAvailable 该链是否配置了分账合约
func (r *Registry) IsContractPathAvailable(chainID int64) bool {
	d, ok := r.chains[chainID]
	return ok && d.HasFeeContract()
}

// ResolvePath 解析结算路径
func (r *Registry) ResolvePath(chainID int64) (SettlementPath, error) {
	d, err := r.GetChainDescriptor(chainID)
	if err != nil {
		return nil, err
	}
	if d.HasFeeContract() {
		return ContractPath{ContractAddress: *d.FeeContractAddress}, nil
	}
	return DirectPath{}, nil
}

// Descriptors 按链ID排序返回所有链
func (r *Registry) Descriptors() []Descriptor {
	list := make([]Descriptor, 0, len(r.chains))
	for _, d := range r.chains {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ChainID < list[j].ChainID })
	return list
}

// ExplorerTxURL 交易在区块浏览器上的地址
func (r *Registry) ExplorerTxURL(chainID int64, txHash string) (string, error) {
	d, err := r.GetChainDescriptor(chainID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/tx/%s", d.ExplorerBaseURL, txHash), nil
}

// TokenSymbol 原生代币符号
func (r *Registry) TokenSymbol(chainID int64) (string, error) {
	d, err := r.GetChainDescriptor(chainID)
	if err != nil {
		return "", err
	}
	return d.NativeCurrencySymbol, nil
}
