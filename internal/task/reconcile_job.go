package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Edcode-bot/gasmeup-sub000/internal/config"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logic"
	"github.com/Edcode-bot/gasmeup-sub000/internal/model"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
)

// Reconciler 对账能力
type Reconciler interface {
	PendingSupports(ctx context.Context, limit int) ([]model.SupportModel, error)
	Reconcile(ctx context.Context, record *model.SupportModel) (*logic.ReconcileResult, error)
}

// ReconcileJob 待确认贡献对账任务
type ReconcileJob struct {
	reconciler Reconciler
	config     config.TaskConfig
	timeout    time.Duration
}

// NewReconcileJob 创建对账任务
func NewReconcileJob(reconciler Reconciler, cfg config.TaskConfig) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		config:     cfg,
		timeout:    30 * time.Second,
	}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return "support_reconciler"
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.config.Interval())
}

// Execute 执行任务
func (j *ReconcileJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.config.Interval()+j.timeout)
	defer cancel()

	settled, err := j.RunOnce(ctx)
	if err != nil {
		logger.Error("Support reconcile failed: %v", err)
		return
	}
	if settled > 0 {
		logger.Info("Support reconcile completed. Settled %d supports", settled)
	}
}

// RunOnce 处理一批 pending 记录，返回状态发生变化的数量
func (j *ReconcileJob) RunOnce(ctx context.Context) (int, error) {
	pending, err := j.reconciler.PendingSupports(ctx, j.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	workers := j.config.Workers
	if workers <= 0 || workers > len(pending) {
		workers = len(pending)
	}

	// 每批创建临时协程池
	pool, err := ants.NewPool(workers)
	if err != nil {
		return 0, err
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		settled atomic.Int32
	)
	for i := range pending {
		record := &pending[i]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, j.timeout)
			defer cancel()

			result, err := j.reconciler.Reconcile(checkCtx, record)
			if err != nil {
				logger.Warn("Failed to reconcile support %s: %v", record.TxHash, err)
				return
			}
			if result.Updated {
				settled.Add(1)
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit reconcile task to pool: %v", err)
		}
	}
	wg.Wait()

	return int(settled.Load()), nil
}
