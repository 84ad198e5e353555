package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/config"
	"github.com/Edcode-bot/gasmeup-sub000/internal/contract"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logic"
	"github.com/Edcode-bot/gasmeup-sub000/internal/repository"
	"github.com/Edcode-bot/gasmeup-sub000/internal/settlement"
	"github.com/Edcode-bot/gasmeup-sub000/internal/tracker"
	"github.com/Edcode-bot/gasmeup-sub000/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const builderHex = "0x00000000000000000000000000000000000000B1"

var sentHash = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000cc")

type testWallet struct {
	rejectSwitch bool
}

func (w *testWallet) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000A1")
}

func (w *testWallet) Request(ctx context.Context, method string, params interface{}) error {
	if w.rejectSwitch {
		return &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."}
	}
	return nil
}

func (w *testWallet) SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error) {
	return sentHash, nil
}

func (w *testWallet) WriteContract(ctx context.Context, call wallet.ContractCall) (common.Hash, error) {
	return sentHash, nil
}

type testStatus struct{ status tracker.Status }

func (s *testStatus) GetStatus(ctx context.Context, chainID int64, txHash common.Hash) (tracker.Status, error) {
	if chainID != chain.BaseChainID && chainID != chain.CeloChainID {
		return tracker.Status{}, &chain.UnsupportedChainError{ChainID: chainID}
	}
	return s.status, nil
}

type testEnv struct {
	engine *gin.Engine
	wallet *testWallet
	status *testStatus

	authorization string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSubmit(t, SubmitPolicy{Enabled: true})
}

func newTestEnvWithSubmit(t *testing.T, submit SubmitPolicy) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	registry, err := chain.NewRegistry(map[string]config.ChainConfig{
		"base": {FeeContract: "0x00000000000000000000000000000000000000fe"},
	})
	require.NoError(t, err)
	fc, err := contract.NewFeeContract()
	require.NoError(t, err)

	env := &testEnv{
		wallet: &testWallet{},
		status: &testStatus{status: tracker.Status{Status: tracker.StatusPending}},
	}
	executor := settlement.NewExecutor(settlement.Deps{Registry: registry, Wallet: env.wallet, FeeContract: fc})
	notifications := repository.NewNotificationRepository(db)
	supportLogic := logic.NewSupportLogic(registry, executor, nil, env.status, repository.NewSupportRepository(db), notifications)
	statsLogic := logic.NewStatsLogic(registry, repository.NewStatsRepository(db))

	env.engine = Setup(Deps{
		Registry:      registry,
		SupportLogic:  supportLogic,
		StatsLogic:    statsLogic,
		Notifications: notifications,
		Submit:        submit,
	})
	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if e.authorization != "" {
		req.Header.Set("Authorization", e.authorization)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestListChains(t *testing.T) {
	env := newTestEnv(t)
	code, resp := env.do(t, http.MethodGet, "/api/v1/chains", nil)
	require.Equal(t, http.StatusOK, code)

	var chains []struct {
		ChainID      int64 `json:"chain_id"`
		ContractPath bool  `json:"contract_path"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &chains))
	require.Len(t, chains, 2)
	assert.Equal(t, chain.BaseChainID, chains[0].ChainID)
	assert.True(t, chains[0].ContractPath)
	assert.False(t, chains[1].ContractPath)
}

func TestPreviewFee(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodGet, "/api/v1/fees/preview?chain_id=8453&amount=10.0", nil)
	require.Equal(t, http.StatusOK, code)
	var preview logic.Preview
	require.NoError(t, json.Unmarshal(resp.Data, &preview))
	assert.Equal(t, "0.3", preview.Amounts.FeeDisplay)
	assert.Equal(t, "9.7", preview.Amounts.NetDisplay)

	code, resp = env.do(t, http.MethodGet, "/api/v1/fees/preview?chain_id=1&amount=10.0", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)

	code, _ = env.do(t, http.MethodGet, "/api/v1/fees/preview?amount=10.0", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSubmitAndQuery(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodPost, "/api/v1/supports", gin.H{
		"to_address": builderHex,
		"amount":     "10.0",
		"message":    "gm",
		"chain_id":   8453,
	})
	require.Equal(t, http.StatusAccepted, code, resp.Message)
	var submitted logic.SubmitResult
	require.NoError(t, json.Unmarshal(resp.Data, &submitted))
	assert.Equal(t, sentHash.Hex(), submitted.TxHash)
	require.NotNil(t, submitted.Support)
	assert.Equal(t, "9700000000000000000", submitted.Support.NetAmount.String())

	code, resp = env.do(t, http.MethodGet, "/api/v1/supports/8453/"+sentHash.Hex()+"/status", nil)
	require.Equal(t, http.StatusOK, code)
	var receipt logic.Receipt
	require.NoError(t, json.Unmarshal(resp.Data, &receipt))
	assert.Equal(t, tracker.StatusPending, receipt.Status.Status)
	assert.NotNil(t, receipt.Support)

	block, confirmations := uint64(10), uint64(2)
	env.status.status = tracker.Status{Status: tracker.StatusConfirmed, BlockNumber: &block, Confirmations: &confirmations}
	code, resp = env.do(t, http.MethodPost, "/api/v1/supports/8453/"+sentHash.Hex()+"/reconcile", nil)
	require.Equal(t, http.StatusOK, code)
	var reconciled logic.ReconcileResult
	require.NoError(t, json.Unmarshal(resp.Data, &reconciled))
	assert.True(t, reconciled.Updated)

	code, resp = env.do(t, http.MethodGet, "/api/v1/builders/"+builderHex+"/supports", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"total":1`)

	code, resp = env.do(t, http.MethodGet, "/api/v1/builders/"+builderHex+"/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"total_display":"9.7"`)

	code, resp = env.do(t, http.MethodGet, "/api/v1/leaderboard/builders?chain_id=8453", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"rank":1`)

	code, resp = env.do(t, http.MethodGet, "/api/v1/users/"+builderHex+"/notifications", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), "New Contribution Received")
}

func TestSubmitErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/api/v1/supports", gin.H{"amount": "1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/supports", gin.H{"to_address": builderHex, "amount": "1", "chain_id": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	env.wallet.rejectSwitch = true
	code, resp := env.do(t, http.MethodPost, "/api/v1/supports", gin.H{"to_address": builderHex, "amount": "1", "chain_id": 8453})
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, resp.Success)
}

func TestSubmitDisabledByDefault(t *testing.T) {
	env := newTestEnvWithSubmit(t, SubmitPolicy{})

	code, resp := env.do(t, http.MethodPost, "/api/v1/supports", gin.H{
		"to_address": builderHex,
		"amount":     "10.0",
		"chain_id":   8453,
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, resp.Success)

	// 只读接口不受影响
	code, _ = env.do(t, http.MethodGet, "/api/v1/chains", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestSubmitRequiresToken(t *testing.T) {
	env := newTestEnvWithSubmit(t, SubmitPolicy{Enabled: true, Token: "s3cret"})
	body := gin.H{"to_address": builderHex, "amount": "10.0", "chain_id": 8453}

	code, _ := env.do(t, http.MethodPost, "/api/v1/supports", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	env.authorization = "Bearer wrong"
	code, _ = env.do(t, http.MethodPost, "/api/v1/supports", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	env.authorization = "Bearer s3cret"
	code, resp := env.do(t, http.MethodPost, "/api/v1/supports", body)
	assert.Equal(t, http.StatusAccepted, code, resp.Message)
}

func TestReconcileUnknownTransaction(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/v1/supports/8453/"+sentHash.Hex()+"/reconcile", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
