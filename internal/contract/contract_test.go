package contract

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	feeAddress = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	supporter  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	builder    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func supportSentLog(t *testing.T, c *FeeContract, address common.Address, amount, fee int64) *types.Log {
	t.Helper()
	event := c.ABI().Events[EventSupportSent]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(amount), big.NewInt(fee), "thanks")
	require.NoError(t, err)
	return &types.Log{
		Address: address,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(supporter.Bytes()),
			common.BytesToHash(builder.Bytes()),
		},
		Data:   data,
		TxHash: common.HexToHash("0xaa"),
		Index:  3,
	}
}

func TestParseSupportSent(t *testing.T) {
	c, err := NewFeeContract()
	require.NoError(t, err)

	logs := []*types.Log{
		nil,
		supportSentLog(t, c, feeAddress, 970, 30),
		supportSentLog(t, c, common.HexToAddress("0x01"), 1, 1), // 其他合约
		{Address: feeAddress, Topics: []common.Hash{common.HexToHash("0x01")}},
	}

	events := c.ParseSupportSent(feeAddress, logs)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, supporter, ev.Supporter)
	assert.Equal(t, builder, ev.Builder)
	assert.Equal(t, int64(970), ev.Amount.Int64())
	assert.Equal(t, int64(30), ev.Fee.Int64())
	assert.Equal(t, "thanks", ev.Message)
	assert.Equal(t, uint(3), ev.LogIndex)
}

func TestSupportCalldata(t *testing.T) {
	c, err := NewFeeContract()
	require.NoError(t, err)

	data, err := c.ABI().Pack(MethodSupport, builder, "gm")
	require.NoError(t, err)
	assert.Equal(t, c.ABI().Methods[MethodSupport].ID, data[:4])
}

func TestLoadFeeContract(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "GasMeUp.abi.json")
	require.NoError(t, os.WriteFile(plain, []byte(FeeContractABI), 0o600))
	c, err := LoadFeeContract(plain)
	require.NoError(t, err)
	assert.Contains(t, c.ABI().Methods, MethodCalculateFee)

	compiled := filepath.Join(dir, "GasMeUp.json")
	require.NoError(t, os.WriteFile(compiled, []byte(`{"contractName":"GasMeUp","abi":`+FeeContractABI+`}`), 0o600))
	c, err = LoadFeeContract(compiled)
	require.NoError(t, err)
	assert.Contains(t, c.ABI().Events, EventSupportSent)

	incomplete := filepath.Join(dir, "Other.json")
	require.NoError(t, os.WriteFile(incomplete, []byte(`[{"inputs":[],"name":"owner","outputs":[],"stateMutability":"view","type":"function"}]`), 0o600))
	_, err = LoadFeeContract(incomplete)
	assert.ErrorContains(t, err, MethodSupport)

	noEvent := filepath.Join(dir, "NoEvent.json")
	require.NoError(t, os.WriteFile(noEvent, []byte(`[
		{"inputs":[{"name":"builder","type":"address"},{"name":"message","type":"string"}],"name":"support","outputs":[],"stateMutability":"payable","type":"function"},
		{"inputs":[{"name":"amount","type":"uint256"}],"name":"calculateFee","outputs":[{"name":"fee","type":"uint256"},{"name":"net","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`), 0o600))
	_, err = LoadFeeContract(noEvent)
	assert.ErrorContains(t, err, EventSupportSent)

	bare := filepath.Join(dir, "Bare.json")
	require.NoError(t, os.WriteFile(bare, []byte(`{"contractName":"GasMeUp"}`), 0o600))
	_, err = LoadFeeContract(bare)
	assert.ErrorContains(t, err, "no abi field")

	_, err = LoadFeeContract(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
