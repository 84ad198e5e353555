package fee

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/contract"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/shopspring/decimal"
)

const (
	PlatformFeeBps int64 = 300 // 3%
	BpsDenominator int64 = 10000
)

// MaxAmountLength 金额字符串的最大长度
const MaxAmountLength = 96

var (
	feeBps      = big.NewInt(PlatformFeeBps)
	denominator = big.NewInt(BpsDenominator)

	// MaxUint256 链上金额上限 2^256-1
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Split 手续费拆分结果，单位为最小单位 (wei)
type Split struct {
	FeeAmount *big.Int `json:"fee_amount"`
	NetAmount *big.Int `json:"net_amount"`
}

// Equal 两个拆分结果是否一致
func (s Split) Equal(other Split) bool {
	return s.FeeAmount.Cmp(other.FeeAmount) == 0 && s.NetAmount.Cmp(other.NetAmount) == 0
}

func mustBeValid(gross *big.Int) {
	if gross == nil {
		panic("fee: nil gross amount")
	}
	if gross.Sign() < 0 {
		panic(fmt.Sprintf("fee: negative gross amount %s", gross))
	}
}

// ComputeFee floor(gross * 300 / 10000)
func ComputeFee(gross *big.Int) *big.Int {
	mustBeValid(gross)
	fee := new(big.Int).Mul(gross, feeBps)
	return fee.Quo(fee, denominator)
}

// ComputeNet gross - ComputeFee(gross)
func ComputeNet(gross *big.Int) *big.Int {
	return new(big.Int).Sub(gross, ComputeFee(gross))
}

// ComputeSplit 本地计算拆分
func ComputeSplit(gross *big.Int) Split {
	return Split{FeeAmount: ComputeFee(gross), NetAmount: ComputeNet(gross)}
}

// ContractQuoter 通过链上 calculateFee 获取权威拆分
type ContractQuoter struct {
	registry *chain.Registry
	clients  chain.Source
	contract *contract.FeeContract
}

// NewContractQuoter 创建链上报价器
func NewContractQuoter(registry *chain.Registry, clients chain.Source, feeContract *contract.FeeContract) *ContractQuoter {
	return &ContractQuoter{
		registry: registry,
		clients:  clients,
		contract: feeContract,
	}
}

// ComputeContractFee 合约路径不可用或调用失败时返回 nil，调用方回退到本地计算
func (q *ContractQuoter) ComputeContractFee(ctx context.Context, gross *big.Int, chainID int64) *Split {
	mustBeValid(gross)

	d, err := q.registry.GetChainDescriptor(chainID)
	if err != nil || !d.HasFeeContract() {
		return nil
	}

	client, err := q.clients.Client(ctx, chainID)
	if err != nil {
		logger.Warn("Fee quote skipped, no client for chain %d: %v", chainID, err)
		return nil
	}

	feeAmount, netAmount, err := q.contract.CalculateFee(ctx, client, *d.FeeContractAddress, gross)
	if err != nil {
		logger.Warn("Fee contract quote failed on chain %d: %v", chainID, err)
		return nil
	}

	return &Split{FeeAmount: feeAmount, NetAmount: netAmount}
}

// ParseUnits 将十进制字符串金额转换为最小单位，例如 "10.0" -> 10e18
// 只接受普通十进制写法，科学计数法和超长输入直接拒绝
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	if len(amount) > MaxAmountLength {
		return nil, fmt.Errorf("invalid amount: longer than %d characters", MaxAmountLength)
	}
	if strings.ContainsAny(amount, "eE") {
		return nil, fmt.Errorf("invalid amount %q: exponent notation is not supported", amount)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: must not be negative", amount)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimal places", amount, decimals)
	}
	value := scaled.BigInt()
	if value.Cmp(MaxUint256) > 0 {
		return nil, fmt.Errorf("invalid amount %q: exceeds uint256", amount)
	}
	return value, nil
}

// FormatUnits 将最小单位金额格式化为十进制字符串
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}
