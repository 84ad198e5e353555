package tracker

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/Edcode-bot/gasmeup-sub000/internal/config"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// CachedReceipt 已确认交易中不会变化的部分
type CachedReceipt struct {
	BlockNumber uint64
	Value       *big.Int
	Delivered   *big.Int
}

// ReceiptCache 回执缓存，区块高度始终实时读取
type ReceiptCache interface {
	Get(ctx context.Context, chainID int64, txHash common.Hash) (CachedReceipt, bool)
	Put(ctx context.Context, chainID int64, txHash common.Hash, record CachedReceipt)
}

type noopCache struct{}

func (noopCache) Get(context.Context, int64, common.Hash) (CachedReceipt, bool) {
	return CachedReceipt{}, false
}

func (noopCache) Put(context.Context, int64, common.Hash, CachedReceipt) {}

const (
	receiptKey    = "receipt:%d:%s" // receipt:链ID:交易hash -> hash field
	receiptExpire = time.Hour * 6
)

// RedisReceiptCache 基于 Redis hash 的回执缓存
type RedisReceiptCache struct {
	client *redis.Client
	expire time.Duration
}

// NewRedisClient 按配置创建 Redis 客户端并检查连通性
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolTimeout:  time.Second * 30,
		ReadTimeout:  time.Second * 2,
		WriteTimeout: time.Second * 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisReceiptCache 创建 Redis 回执缓存
func NewRedisReceiptCache(client *redis.Client) *RedisReceiptCache {
	return &RedisReceiptCache{client: client, expire: receiptExpire}
}

// Get 读取缓存，任何错误都视为未命中
func (c *RedisReceiptCache) Get(ctx context.Context, chainID int64, txHash common.Hash) (CachedReceipt, bool) {
	data, err := c.client.HGetAll(ctx, fmt.Sprintf(receiptKey, chainID, txHash.Hex())).Result()
	if err != nil {
		logger.Warn("Receipt cache read failed for %s: %v", txHash.Hex(), err)
		return CachedReceipt{}, false
	}
	if len(data) == 0 {
		return CachedReceipt{}, false
	}

	block, err := strconv.ParseUint(data["block_number"], 10, 64)
	if err != nil {
		return CachedReceipt{}, false
	}
	value, ok := new(big.Int).SetString(data["value"], 10)
	if !ok {
		return CachedReceipt{}, false
	}

	record := CachedReceipt{BlockNumber: block, Value: value}
	if raw := data["delivered"]; raw != "" {
		if delivered, ok := new(big.Int).SetString(raw, 10); ok {
			record.Delivered = delivered
		}
	}
	return record, true
}

// Put 写入缓存并设置过期时间
func (c *RedisReceiptCache) Put(ctx context.Context, chainID int64, txHash common.Hash, record CachedReceipt) {
	key := fmt.Sprintf(receiptKey, chainID, txHash.Hex())

	delivered := ""
	if record.Delivered != nil {
		delivered = record.Delivered.String()
	}
	value := "0"
	if record.Value != nil {
		value = record.Value.String()
	}

	if err := c.client.HSet(ctx, key,
		"block_number", record.BlockNumber,
		"value", value,
		"delivered", delivered,
	).Err(); err != nil {
		logger.Warn("Receipt cache write failed for %s: %v", txHash.Hex(), err)
		return
	}

	if err := c.client.Expire(ctx, key, c.expire).Err(); err != nil {
		logger.Warn("Failed to set receipt cache expiry for %s: %v", txHash.Hex(), err)
	}
}
