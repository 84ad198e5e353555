package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client 结算和查询所需的链客户端能力，*ethclient.Client 满足该接口
type Client interface {
	bind.ContractBackend
	ethereum.TransactionReader
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Source 按链ID获取客户端
type Source interface {
	Client(ctx context.Context, chainID int64) (Client, error)
}

// Dialer 按RPC地址建立客户端连接
type Dialer interface {
	Dial(ctx context.Context, rpcURL string) (Client, error)
}

// ClientManager 多链客户端管理器，按RPC地址缓存连接
type ClientManager struct {
	mu       sync.RWMutex
	registry *Registry
	clients  map[string]Client // rpcURL -> client
	dial     func(ctx context.Context, rpcURL string) (Client, error)
}

// NewClientManager 创建客户端管理器，连接在首次使用时建立
func NewClientManager(registry *Registry) *ClientManager {
	return &ClientManager{
		registry: registry,
		clients:  make(map[string]Client),
		dial: func(ctx context.Context, rpcURL string) (Client, error) {
			return ethclient.DialContext(ctx, rpcURL)
		},
	}
}

// Client 获取指定链的客户端
func (m *ClientManager) Client(ctx context.Context, chainID int64) (Client, error) {
	d, err := m.registry.GetChainDescriptor(chainID)
	if err != nil {
		return nil, err
	}
	return m.Dial(ctx, d.RPCURL)
}

// Dial 获取或建立到指定RPC地址的连接
func (m *ClientManager) Dial(ctx context.Context, rpcURL string) (Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	m.mu.RLock()
	client, ok := m.clients[rpcURL]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[rpcURL]; ok {
		return client, nil
	}

	logger.Info("Creating chain client connection (RPC: %s)", rpcURL)
	client, err := m.dial(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	m.clients[rpcURL] = client
	return client, nil
}

// Health 获取各链连接状态
func (m *ClientManager) Health(ctx context.Context) map[string]interface{} {
	chains := make(map[string]interface{})
	for _, d := range m.registry.Descriptors() {
		status := map[string]interface{}{
			"chain_id":      d.ChainID,
			"contract_path": d.HasFeeContract(),
			"client_status": "connected",
		}

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := m.Client(checkCtx, d.ChainID)
		if err != nil {
			status["client_status"] = "not_initialized"
		} else if head, err := client.BlockNumber(checkCtx); err != nil {
			status["client_status"] = "disconnected"
		} else {
			status["head"] = head
		}
		cancel()

		chains[d.Key] = status
	}
	return chains
}

// Close 关闭所有连接
func (m *ClientManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for url, client := range m.clients {
		client.Close()
		delete(m.clients, url)
	}
	logger.Info("Chain client manager closed")
}
