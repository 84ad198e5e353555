package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	alice = "0x00000000000000000000000000000000000000A1"
	bob   = "0x00000000000000000000000000000000000000A2"
	carol = "0x00000000000000000000000000000000000000B1"
	dave  = "0x00000000000000000000000000000000000000B2"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func support(from, to string, amount int64, chainID int64, hash string) *model.SupportModel {
	return &model.SupportModel{
		FromAddress: from,
		ToAddress:   to,
		NetAmount:   decimal.NewFromInt(amount),
		ChainId:     chainID,
		TxHash:      hash,
	}
}

func TestCreateLowercasesAndAssignsID(t *testing.T) {
	repo := NewSupportRepository(newTestDB(t))
	ctx := context.Background()

	s := support(alice, carol, 970, 8453, "0xABCD")
	s.Status = model.SupportStatusConfirmed
	require.NoError(t, repo.Create(ctx, s))
	assert.Len(t, s.Id, 36)

	found, err := repo.FindByTxHash(ctx, 8453, "0xabcd")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000a1", found.FromAddress)
	assert.Equal(t, "0x00000000000000000000000000000000000000b1", found.ToAddress)
	assert.Equal(t, model.SupportStatusPending, found.Status)
	assert.True(t, found.NetAmount.Equal(decimal.NewFromInt(970)))
}

func TestCreateDuplicateTransaction(t *testing.T) {
	repo := NewSupportRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, support(alice, carol, 1, 8453, "0x01")))
	assert.ErrorIs(t, repo.Create(ctx, support(alice, carol, 1, 8453, "0x01")), ErrDuplicateSupport)

	// 同一哈希在不同链上互不冲突
	assert.NoError(t, repo.Create(ctx, support(alice, carol, 1, 42220, "0x01")))
}

func TestFindByTxHashNotFound(t *testing.T) {
	repo := NewSupportRepository(newTestDB(t))
	_, err := repo.FindByTxHash(context.Background(), 8453, "0xdead")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUpdateStatusNeverLeavesFinalState(t *testing.T) {
	repo := NewSupportRepository(newTestDB(t))
	ctx := context.Background()

	s := support(alice, carol, 1, 8453, "0x02")
	require.NoError(t, repo.Create(ctx, s))

	block, confirmations := int64(100), int64(3)
	updated, err := repo.UpdateStatus(ctx, s.Id, model.SupportStatusConfirmed, &block, &confirmations)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = repo.UpdateStatus(ctx, s.Id, model.SupportStatusFailed, nil, nil)
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = repo.UpdateStatus(ctx, s.Id, model.SupportStatusPending, nil, nil)
	require.NoError(t, err)
	assert.False(t, updated)

	found, err := repo.FindByTxHash(ctx, 8453, "0x02")
	require.NoError(t, err)
	assert.Equal(t, model.SupportStatusConfirmed, found.Status)
	assert.Equal(t, int64(100), *found.BlockNum)
	assert.Equal(t, int64(3), *found.Confirmations)
}

func TestListPendingAndPagination(t *testing.T) {
	db := newTestDB(t)
	repo := NewSupportRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, hash := range []string{"0x10", "0x11", "0x12"} {
		s := support(alice, carol, int64(i+1), 8453, hash)
		s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, s))
	}
	first, err := repo.FindByTxHash(ctx, 8453, "0x10")
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, first.Id, model.SupportStatusFailed, nil, nil)
	require.NoError(t, err)

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "0x11", pending[0].TxHash)

	list, total, err := repo.ListByToAddress(ctx, carol, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	assert.Equal(t, "0x12", list[0].TxHash)

	list, _, err = repo.ListByFromAddress(ctx, alice, 2, 2)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListPendingRotatesStuckRecords(t *testing.T) {
	repo := NewSupportRepository(newTestDB(t))
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	// 三笔永远不会上链的旧交易，一笔之后才提交的新交易
	base := clock.Add(-time.Hour)
	for i, hash := range []string{"0x30", "0x31", "0x32", "0x33"} {
		s := support(alice, carol, 1, 8453, hash)
		s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, s))
	}

	batch := func() []string {
		t.Helper()
		pending, err := repo.ListPending(ctx, 3)
		require.NoError(t, err)
		hashes := make([]string, 0, len(pending))
		for _, p := range pending {
			require.NotNil(t, p.LastCheckedAt)
			hashes = append(hashes, p.TxHash)
		}
		return hashes
	}

	assert.Equal(t, []string{"0x30", "0x31", "0x32"}, batch())
	assert.Equal(t, []string{"0x33", "0x30", "0x31"}, batch())
	assert.Equal(t, []string{"0x32", "0x30", "0x31"}, batch())

	// 新交易确认后不再出现
	newest, err := repo.FindByTxHash(ctx, 8453, "0x33")
	require.NoError(t, err)
	updated, err := repo.UpdateStatus(ctx, newest.Id, model.SupportStatusConfirmed, nil, nil)
	require.NoError(t, err)
	require.True(t, updated)
	assert.Equal(t, []string{"0x30", "0x31", "0x32"}, batch())
}

func TestListByProject(t *testing.T) {
	repo := NewSupportRepository(newTestDB(t))
	ctx := context.Background()

	project := "proj-1"
	s := support(alice, carol, 5, 8453, "0x20")
	s.ProjectId = &project
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, repo.Create(ctx, support(alice, carol, 5, 8453, "0x21")))

	list, total, err := repo.ListByProject(ctx, project, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "0x20", list[0].TxHash)
}

func TestStatsExcludeFailed(t *testing.T) {
	db := newTestDB(t)
	repo := NewSupportRepository(db)
	stats := NewStatsRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, support(alice, carol, 100, 8453, "0x30")))
	require.NoError(t, repo.Create(ctx, support(alice, dave, 50, 8453, "0x31")))
	require.NoError(t, repo.Create(ctx, support(bob, carol, 300, 8453, "0x32")))
	require.NoError(t, repo.Create(ctx, support(bob, carol, 7, 42220, "0x33")))

	failed := support(alice, carol, 1000, 8453, "0x34")
	require.NoError(t, repo.Create(ctx, failed))
	_, err := repo.UpdateStatus(ctx, failed.Id, model.SupportStatusFailed, nil, nil)
	require.NoError(t, err)

	project := "proj-1"
	projectSupport := support(alice, dave, 900, 8453, "0x35")
	projectSupport.ProjectId = &project
	require.NoError(t, repo.Create(ctx, projectSupport))

	totals, err := stats.ChainTotals(ctx, "")
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, int64(8453), totals[0].ChainId)
	assert.True(t, totals[0].TotalAmount.Equal(decimal.NewFromInt(1350)))
	assert.Equal(t, int64(4), totals[0].Count)
	assert.Equal(t, int64(2), totals[0].Supporters)

	builderTotals, err := stats.ChainTotals(ctx, carol)
	require.NoError(t, err)
	require.Len(t, builderTotals, 2)
	assert.True(t, builderTotals[0].TotalAmount.Equal(decimal.NewFromInt(400)))

	supporters, err := stats.TopSupporters(ctx, 8453, 10)
	require.NoError(t, err)
	require.Len(t, supporters, 2)
	assert.Equal(t, "0x00000000000000000000000000000000000000a1", supporters[0].Address)
	assert.True(t, supporters[0].TotalAmount.Equal(decimal.NewFromInt(1050)))
	assert.Equal(t, int64(2), supporters[0].Counterparties)

	builders, err := stats.TopBuilders(ctx, 8453, 10)
	require.NoError(t, err)
	require.Len(t, builders, 2)
	assert.Equal(t, "0x00000000000000000000000000000000000000b1", builders[0].Address)
	assert.True(t, builders[0].TotalAmount.Equal(decimal.NewFromInt(400)))
	assert.True(t, builders[1].TotalAmount.Equal(decimal.NewFromInt(50)))
}

func TestNotificationRepository(t *testing.T) {
	repo := NewNotificationRepository(newTestDB(t))
	ctx := context.Background()

	n := &model.NotificationModel{
		UserAddress: carol,
		Type:        model.NotificationContribution,
		Title:       "New Contribution Received",
	}
	require.NoError(t, repo.Create(ctx, n))
	assert.NotEmpty(t, n.Id)

	list, err := repo.ListByUser(ctx, carol, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read)
}

func TestCursorSaveAndAdvance(t *testing.T) {
	repo := NewCursorRepository(newTestDB(t))
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, 8453)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Save(ctx, 8453, 1000))
	require.NoError(t, repo.Save(ctx, 8453, 1499))
	require.NoError(t, repo.Save(ctx, 42220, 7))

	block, ok, err := repo.Get(ctx, 8453)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1499), block)

	block, _, err = repo.Get(ctx, 42220)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), block)
}
