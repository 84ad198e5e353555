package monitor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/config"
	"github.com/Edcode-bot/gasmeup-sub000/internal/contract"
	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"github.com/Edcode-bot/gasmeup-sub000/internal/repository"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	feeAddress = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	supporter  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	builder    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

// fakeLogs 按区块范围返回预置日志
type fakeLogs struct {
	chain.Client
	head    uint64
	logs    []types.Log
	failAt  uint64
	failErr error
	queries [][2]uint64
}

func (c *fakeLogs) BlockNumber(ctx context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeLogs) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	c.queries = append(c.queries, [2]uint64{from, to})
	if c.failErr != nil && from <= c.failAt && c.failAt <= to {
		return nil, c.failErr
	}

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeSource struct{ client chain.Client }

func (s fakeSource) Client(ctx context.Context, chainID int64) (chain.Client, error) {
	if chainID != chain.BaseChainID {
		return nil, errors.New("unexpected chain")
	}
	return s.client, nil
}

type indexerEnv struct {
	indexer  *SupportIndexer
	supports *repository.SupportRepository
	cursors  *repository.CursorRepository
	client   *fakeLogs
}

func newIndexerEnv(t *testing.T, client *fakeLogs, deployBlock uint64) *indexerEnv {
	t.Helper()

	db, err := repository.Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	registry, err := chain.NewRegistry(map[string]config.ChainConfig{
		"base": {FeeContract: feeAddress.Hex(), StartBlock: deployBlock},
	})
	require.NoError(t, err)
	fc, err := contract.NewFeeContract()
	require.NoError(t, err)

	env := &indexerEnv{
		supports: repository.NewSupportRepository(db),
		cursors:  repository.NewCursorRepository(db),
		client:   client,
	}
	env.indexer = NewSupportIndexer(registry, fakeSource{client: client}, fc, env.supports, env.cursors,
		config.TaskConfig{IndexInterval: 60, IndexBlockRange: 100})
	return env
}

func supportLog(t *testing.T, tx common.Hash, block uint64, amount int64, message string) types.Log {
	t.Helper()
	fc, err := contract.NewFeeContract()
	require.NoError(t, err)
	event := fc.ABI().Events[contract.EventSupportSent]

	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(amount), big.NewInt(amount*3/97), message)
	require.NoError(t, err)
	return types.Log{
		Address: feeAddress,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(supporter.Bytes()),
			common.BytesToHash(builder.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
	}
}

func TestIndexerIngestsSupportSentEvents(t *testing.T) {
	tx1 := common.HexToHash("0x01")
	tx2 := common.HexToHash("0x02")
	client := &fakeLogs{head: 1250}
	client.logs = []types.Log{
		supportLog(t, tx1, 1010, 970, "gm"),
		supportLog(t, tx2, 1220, 9700, ""),
	}
	env := newIndexerEnv(t, client, 1000)

	indexed, err := env.indexer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)

	// 1000..1250 按 100 个区块分批
	assert.Equal(t, [][2]uint64{{1000, 1099}, {1100, 1199}, {1200, 1250}}, client.queries)

	last, ok, err := env.cursors.Get(context.Background(), chain.BaseChainID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1250), last)

	record, err := env.supports.FindByTxHash(context.Background(), chain.BaseChainID, tx1.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SupportStatusPending, record.Status)
	assert.True(t, record.ViaContract)
	assert.Equal(t, "970", record.NetAmount.String())
	assert.Equal(t, "0x00000000000000000000000000000000000000a1", record.FromAddress)
	assert.Equal(t, "0x00000000000000000000000000000000000000b1", record.ToAddress)
	require.NotNil(t, record.Message)
	assert.Equal(t, "gm", *record.Message)
	require.NotNil(t, record.BlockNum)
	assert.Equal(t, int64(1010), *record.BlockNum)

	record, err = env.supports.FindByTxHash(context.Background(), chain.BaseChainID, tx2.Hex())
	require.NoError(t, err)
	assert.Nil(t, record.Message)

	progress := env.indexer.Progress()
	require.Len(t, progress, 1)
	assert.Equal(t, uint64(1250), progress[0].LastBlock)
	assert.Equal(t, 2, progress[0].Indexed)
}

func TestIndexerResumesFromCursorAndSkipsKnown(t *testing.T) {
	tx1 := common.HexToHash("0x01")
	client := &fakeLogs{head: 1300}
	client.logs = []types.Log{supportLog(t, tx1, 1290, 970, "gm")}
	env := newIndexerEnv(t, client, 1000)
	ctx := context.Background()

	require.NoError(t, env.cursors.Save(ctx, chain.BaseChainID, 1250))
	require.NoError(t, env.supports.Create(ctx, &model.SupportModel{
		FromAddress: supporter.Hex(),
		ToAddress:   builder.Hex(),
		NetAmount:   decimal.NewFromInt(970),
		ChainId:     chain.BaseChainID,
		TxHash:      tx1.Hex(),
	}))

	indexed, err := env.indexer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, indexed)
	assert.Equal(t, [][2]uint64{{1251, 1300}}, client.queries)

	// 已追上最新区块，不再查询
	client.queries = nil
	indexed, err = env.indexer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, indexed)
	assert.Empty(t, client.queries)
}

func TestIndexerStartsAtHeadWithoutDeployBlock(t *testing.T) {
	client := &fakeLogs{head: 5000}
	env := newIndexerEnv(t, client, 0)

	_, err := env.indexer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{5000, 5000}}, client.queries)
}

func TestIndexerStopsOnRateLimit(t *testing.T) {
	client := &fakeLogs{head: 1250, failAt: 1150, failErr: errors.New("429 Too Many Requests")}
	env := newIndexerEnv(t, client, 1000)

	_, err := env.indexer.RunOnce(context.Background())
	require.NoError(t, err)

	last, ok, err := env.cursors.Get(context.Background(), chain.BaseChainID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1099), last)
}

func TestIndexerReportsRPCErrors(t *testing.T) {
	client := &fakeLogs{head: 1250, failAt: 1000, failErr: errors.New("connection refused")}
	env := newIndexerEnv(t, client, 1000)

	_, err := env.indexer.RunOnce(context.Background())
	assert.ErrorContains(t, err, "connection refused")

	_, ok, err := env.cursors.Get(context.Background(), chain.BaseChainID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexerSkipsChainsWithoutContract(t *testing.T) {
	registry, err := chain.NewRegistry(nil)
	require.NoError(t, err)
	fc, err := contract.NewFeeContract()
	require.NoError(t, err)

	indexer := NewSupportIndexer(registry, fakeSource{}, fc, nil, nil, config.TaskConfig{})
	indexed, err := indexer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, indexed)
	assert.Equal(t, "support_indexer", indexer.GetName())
}
