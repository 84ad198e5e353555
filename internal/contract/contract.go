package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	MethodSupport      = "support"
	MethodCalculateFee = "calculateFee"
	EventSupportSent   = "SupportSent"
)

// GasMeUp 分账合约ABI (v1)
const FeeContractABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "_platformWallet", "type": "address"},
			{"internalType": "uint256", "name": "_platformFeeBps", "type": "uint256"},
			{"internalType": "uint256", "name": "_minAmount", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "constructor"
	},
	{"inputs": [], "name": "InsufficientAmount", "type": "error"},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "supporter", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "builder", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"},
			{"indexed": false, "internalType": "string", "name": "message", "type": "string"}
		],
		"name": "SupportSent",
		"type": "event"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "builder", "type": "address"},
			{"internalType": "string", "name": "message", "type": "string"}
		],
		"name": "support",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "amount", "type": "uint256"}],
		"name": "calculateFee",
		"outputs": [
			{"internalType": "uint256", "name": "fee", "type": "uint256"},
			{"internalType": "uint256", "name": "builderAmount", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "platformFeeBps",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "", "type": "address"}],
		"name": "builderTotalRaised",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// FeeContract 分账合约ABI包装，与具体链和地址无关
type FeeContract struct {
	abi abi.ABI
}

// SupportSent 合约分账事件
type SupportSent struct {
	Supporter common.Address `json:"supporter"`
	Builder   common.Address `json:"builder"`
	Amount    *big.Int       `json:"amount"` // 实际转给 builder 的金额
	Fee       *big.Int       `json:"fee"`
	Message   string         `json:"message"`
	TxHash    common.Hash    `json:"tx_hash"`
	LogIndex  uint           `json:"log_index"`
}

// NewFeeContract 使用内置ABI创建
func NewFeeContract() (*FeeContract, error) {
	parsed, err := abi.JSON(strings.NewReader(FeeContractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fee contract ABI: %w", err)
	}
	return &FeeContract{abi: parsed}, nil
}

// LoadFeeContract 从 hardhat 编译产物或纯ABI文件加载
func LoadFeeContract(path string) (*FeeContract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee contract ABI: %w", err)
	}
	c, err := parseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func parseArtifact(data []byte) (*FeeContract, error) {
	// hardhat artifacts/*.json 把ABI放在 abi 字段下
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	raw := data
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, fmt.Errorf("invalid artifact json: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return nil, fmt.Errorf("artifact has no abi field")
		}
		raw = artifact.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid ABI: %w", err)
	}
	for _, method := range []string{MethodSupport, MethodCalculateFee} {
		if _, ok := parsed.Methods[method]; !ok {
			return nil, fmt.Errorf("ABI has no %s method", method)
		}
	}
	if _, ok := parsed.Events[EventSupportSent]; !ok {
		return nil, fmt.Errorf("ABI has no %s event", EventSupportSent)
	}
	return &FeeContract{abi: parsed}, nil
}

// ABI 获取合约ABI
func (c *FeeContract) ABI() abi.ABI {
	return c.abi
}

// CalculateFee 只读调用 calculateFee(uint256) 获取链上分账结果
func (c *FeeContract) CalculateFee(ctx context.Context, caller bind.ContractCaller, address common.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	bound := bind.NewBoundContract(address, c.abi, caller, nil, nil)

	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, MethodCalculateFee, amount); err != nil {
		return nil, nil, fmt.Errorf("calculateFee call failed: %w", err)
	}
	if len(out) != 2 {
		return nil, nil, fmt.Errorf("calculateFee returned %d values, want 2", len(out))
	}

	fee, ok := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("calculateFee returned non-integer fee")
	}
	net, ok := abi.ConvertType(out[1], new(big.Int)).(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("calculateFee returned non-integer amount")
	}
	return fee, net, nil
}

// ParseSupportSent 从回执日志中解析指定合约的 SupportSent 事件
func (c *FeeContract) ParseSupportSent(address common.Address, logs []*types.Log) []SupportSent {
	event, ok := c.abi.Events[EventSupportSent]
	if !ok {
		return nil
	}

	var events []SupportSent
	for _, log := range logs {
		if log == nil || log.Address != address || len(log.Topics) < 3 || log.Topics[0] != event.ID {
			continue
		}

		values, err := c.abi.Unpack(EventSupportSent, log.Data)
		if err != nil || len(values) < 3 {
			continue
		}

		amount, _ := values[0].(*big.Int)
		fee, _ := values[1].(*big.Int)
		message, _ := values[2].(string)

		events = append(events, SupportSent{
			Supporter: common.BytesToAddress(log.Topics[1].Bytes()),
			Builder:   common.BytesToAddress(log.Topics[2].Bytes()),
			Amount:    amount,
			Fee:       fee,
			Message:   message,
			TxHash:    log.TxHash,
			LogIndex:  log.Index,
		})
	}
	return events
}
