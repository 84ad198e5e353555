package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/config"
	"github.com/Edcode-bot/gasmeup-sub000/internal/contract"
	"github.com/Edcode-bot/gasmeup-sub000/internal/fee"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logic"
	"github.com/Edcode-bot/gasmeup-sub000/internal/monitor"
	"github.com/Edcode-bot/gasmeup-sub000/internal/repository"
	"github.com/Edcode-bot/gasmeup-sub000/internal/router"
	"github.com/Edcode-bot/gasmeup-sub000/internal/settlement"
	"github.com/Edcode-bot/gasmeup-sub000/internal/task"
	"github.com/Edcode-bot/gasmeup-sub000/internal/tracker"
	"github.com/Edcode-bot/gasmeup-sub000/internal/wallet"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := repository.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 链注册表与客户端
	registry, err := chain.NewRegistry(cfg.Chains)
	if err != nil {
		logger.Fatal("Failed to build chain registry: %v", err)
	}
	clients := chain.NewClientManager(registry)
	defer clients.Close()

	feeContract, err := loadFeeContract(cfg.Contract)
	if err != nil {
		logger.Fatal("Failed to load fee contract ABI: %v", err)
	}

	deps := settlement.Deps{
		Registry:    registry,
		FeeContract: feeContract,
		Clients:     clients,
	}
	switch {
	case !cfg.Wallet.SubmitEnabled:
		logger.Info("Server-side submission is disabled, serving read-only settlement APIs")
	case cfg.Wallet.PrivateKey == "":
		logger.Warn("wallet.submit_enabled is set but no private key is configured, submissions will fail")
	default:
		if cfg.Wallet.APIToken == "" {
			logger.Warn("Server-side submission is enabled without an API token")
		}
		w, err := newWallet(cfg.Wallet, registry, clients)
		if err != nil {
			logger.Fatal("Failed to initialize wallet: %v", err)
		}
		deps.Wallet = w
	}
	executor := settlement.NewExecutor(deps)

	trackerOpts := []tracker.Option{tracker.WithFeeContract(feeContract)}
	if cfg.Redis.Enabled {
		rdb, err := tracker.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		trackerOpts = append(trackerOpts, tracker.WithCache(tracker.NewRedisReceiptCache(rdb)))
	}
	statusTracker := tracker.NewTracker(registry, clients, trackerOpts...)

	supports := repository.NewSupportRepository(db)
	notifications := repository.NewNotificationRepository(db)
	supportLogic := logic.NewSupportLogic(
		registry,
		executor,
		fee.NewContractQuoter(registry, clients, feeContract),
		statusTracker,
		supports,
		notifications,
	)
	supportLogic.SetMinConfirmations(cfg.Task.MinConfirmations)
	statsLogic := logic.NewStatsLogic(registry, repository.NewStatsRepository(db))

	// 启动定时任务
	jobs := []task.Job{task.NewReconcileJob(supportLogic, cfg.Task)}
	var indexer *monitor.SupportIndexer
	if cfg.Task.IndexEnabled {
		indexer = monitor.NewSupportIndexer(registry, clients, feeContract, supports, repository.NewCursorRepository(db), cfg.Task)
		jobs = append(jobs, indexer)
	}
	tasks, err := task.NewManager(jobs...)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	tasks.Start()
	defer tasks.Stop()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	routes := router.Deps{
		Registry:      registry,
		SupportLogic:  supportLogic,
		StatsLogic:    statsLogic,
		Notifications: notifications,
		Health:        clients,
		Submit: router.SubmitPolicy{
			Enabled: cfg.Wallet.SubmitEnabled,
			Token:   cfg.Wallet.APIToken,
		},
	}
	if indexer != nil {
		routes.Indexer = indexer
	}
	r := router.Setup(routes)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
}

// loadFeeContract 配置了ABI路径时从文件加载，否则使用内置ABI
func loadFeeContract(cfg config.ContractConfig) (*contract.FeeContract, error) {
	if cfg.ABIPath == "" {
		return contract.NewFeeContract()
	}
	logger.Info("Loading fee contract ABI from %s", cfg.ABIPath)
	return contract.LoadFeeContract(cfg.ABIPath)
}

// newWallet 创建服务端签名钱包并连接到 Base
func newWallet(cfg config.WalletConfig, registry *chain.Registry, clients *chain.ClientManager) (*wallet.KeyedWallet, error) {
	w, err := wallet.NewKeyedWallet(cfg.PrivateKey, clients)
	if err != nil {
		return nil, err
	}

	base, err := registry.GetChainDescriptor(chain.BaseChainID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := w.Connect(ctx, base.RPCURL); err != nil {
		return nil, err
	}
	return w, nil
}
