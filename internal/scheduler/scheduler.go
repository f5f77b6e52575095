package scheduler

import (
	"fmt"
	"sync"

	"AutoDailyReport/internal/config"
	"AutoDailyReport/internal/storage"
	"AutoDailyReport/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Scheduler 后台任务调度器
// 目前只承载保留期清理任务，每天凌晨 3 点执行一次
type Scheduler struct {
	cron       *cron.Cron
	configMgr  *config.Manager
	storageMgr *storage.Manager
	mu         sync.Mutex
	running    bool
}

// NewScheduler 创建任务调度器
func NewScheduler(configMgr *config.Manager, storageMgr *storage.Manager) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		configMgr:  configMgr,
		storageMgr: storageMgr,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	// 添加清理任务（每天凌晨 3 点）
	_, err := s.cron.AddFunc("0 3 * * *", s.runCleanup)
	if err != nil {
		return fmt.Errorf("failed to add cleanup job: %w", err)
	}

	s.cron.Start()
	s.running = true

	logger.Info("⏰ 任务调度器已启动 (清理任务: 每天 03:00)")
	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cron.Stop()
	s.running = false
	logger.Info("⏰ 任务调度器已停止")
}

// IsRunning 检查是否运行中
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runCleanup 执行清理任务
func (s *Scheduler) runCleanup() {
	logger.Info("🧹 开始清理旧产物...")

	storageCfg := s.configMgr.GetStorage()
	if storageCfg.RetentionDays <= 0 {
		logger.Info("保留期未配置, 跳过清理")
		return
	}

	deleted, err := s.storageMgr.DeleteOldArtifacts(storageCfg.RetentionDays)
	if err != nil {
		logger.Error("❌ 清理失败: %v", err)
		return
	}

	logger.Info("✅ 清理完成, 删除了 %d 个旧产物", deleted)
}
