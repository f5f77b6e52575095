package capture

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"AutoDailyReport/internal/config"
	"AutoDailyReport/internal/storage"
	"AutoDailyReport/pkg/logger"
	"AutoDailyReport/pkg/models"
	"AutoDailyReport/pkg/utils"

	"github.com/kbinani/screenshot"
)

// Analyzer 分析器接口，避免与 analysis 包循环依赖
type Analyzer interface {
	Analyze(imagePath, model, prompt string) (string, error)
}

// CaptureFlag 截屏进行中标志，由倒计时调度器实现
// 置位期间托盘指示器冻结并显示"截屏中"
type CaptureFlag interface {
	SetCapturing(capturing bool)
}

// Engine 截屏引擎
// 负责采集原始截图并驱动处理/分析流程
// 所有工作在单个 worker goroutine 上串行执行，
// 截屏周期由外部（倒计时调度器）触发，同一时刻最多一个周期在执行
type Engine struct {
	configMgr  *config.Manager
	storageMgr *storage.Manager
	processor  *Processor
	analyzer   Analyzer
	flag       CaptureFlag
	cacheDir   string

	jobs    chan struct{}
	done    chan struct{}
	mu      sync.RWMutex
	running bool

	lastCapture  time.Time
	lastArtifact string
}

// NewEngine 创建截屏引擎
// cacheDir 为原始截图的临时落盘目录，必须在处理器的来源策略允许范围内
func NewEngine(
	configMgr *config.Manager,
	storageMgr *storage.Manager,
	processor *Processor,
	analyzer Analyzer,
	flag CaptureFlag,
	cacheDir string,
) *Engine {
	return &Engine{
		configMgr:  configMgr,
		storageMgr: storageMgr,
		processor:  processor,
		analyzer:   analyzer,
		flag:       flag,
		cacheDir:   cacheDir,
		jobs:       make(chan struct{}, 1),
	}
}

// Start 启动 worker goroutine
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("capture engine already running")
	}

	if err := os.MkdirAll(e.cacheDir, 0755); err != nil {
		return fmt.Errorf("%w: 创建缓存目录 %s: %v", ErrIO, e.cacheDir, err)
	}

	e.done = make(chan struct{})
	e.running = true
	go e.workerLoop(e.done)

	logger.Info("截屏引擎已启动, 缓存目录: %s", e.cacheDir)
	return nil
}

// Stop 停止 worker goroutine
// 正在执行中的周期会运行完毕
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return fmt.Errorf("capture engine not running")
	}

	close(e.done)
	e.running = false

	logger.Info("截屏引擎已停止")
	return nil
}

// IsRunning 检查是否运行中
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastCapture 获取最后一次截屏时间
func (e *Engine) LastCapture() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCapture
}

// LastArtifact 获取最后一次产物路径
func (e *Engine) LastArtifact() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastArtifact
}

// TriggerCycle 请求执行一次截屏周期（非阻塞）
// 上一个周期尚未完成时本次触发被丢弃，调度器的下一个周期会再次触发
func (e *Engine) TriggerCycle() {
	select {
	case e.jobs <- struct{}{}:
	default:
		logger.Warn("上一个截屏周期尚未完成, 本次触发跳过")
	}
}

// workerLoop 串行消费截屏任务
func (e *Engine) workerLoop(done chan struct{}) {
	logger.Info("截屏 worker 已启动")
	for {
		select {
		case <-done:
			logger.Info("截屏 worker 已退出")
			return
		case <-e.jobs:
			if err := e.runCycle(); err != nil {
				logger.Error("截屏周期失败: %v", err)
			}
		}
	}
}

// runCycle 执行一个完整的截屏周期：采集 -> 处理 -> （可选）分析
func (e *Engine) runCycle() error {
	if e.flag != nil {
		e.flag.SetCapturing(true)
		defer e.flag.SetCapturing(false)
	}

	cfg := e.configMgr.GetCapture()

	// 1. 采集原始截图到缓存目录
	rawPath, resolution, err := e.acquire(cfg.ScreenIndex)
	if err != nil {
		return err
	}

	// 2. 处理为产物
	dest, err := e.processor.Process(rawPath)
	if err != nil {
		// 处理失败时原始文件可能还在，尽力清理
		os.Remove(rawPath)
		return err
	}

	now := time.Now()
	e.mu.Lock()
	e.lastCapture = now
	e.lastArtifact = dest
	e.mu.Unlock()

	// 3. 记录产物
	var size int64
	if info, err := os.Stat(dest); err == nil {
		size = info.Size()
	}
	art := &models.Artifact{
		Timestamp:  now,
		FilePath:   dest,
		FileSize:   size,
		Resolution: resolution,
		Analyzed:   false,
		CreatedAt:  now,
	}
	if err := e.storageMgr.SaveArtifact(art); err != nil {
		logger.Error("保存产物记录失败: %v", err)
	}

	logger.Info("截屏完成: %s (%s)", dest, utils.FormatBytes(size))

	// 4. 可选的自动分析
	if e.analyzer != nil && cfg.AutoAnalyze {
		aiCfg := e.configMgr.GetAI()
		text, err := e.analyzer.Analyze(dest, aiCfg.Model, aiCfg.Prompt)
		if err != nil {
			logger.Error("自动分析失败: %v", err)
			return nil // 产物已写入，分析失败不影响截屏周期本身
		}
		if art.ID != 0 {
			if err := e.storageMgr.MarkArtifactAnalyzed(art.ID); err != nil {
				logger.Error("标记产物已分析失败: %v", err)
			}
		}
		logger.Info("自动分析完成: %s", utils.TruncateString(text, 80))
	}

	return nil
}

// acquire 截取指定屏幕并写入缓存目录，返回临时文件路径与分辨率
func (e *Engine) acquire(screenIndex int) (string, string, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return "", "", fmt.Errorf("没有可用的屏幕")
	}
	if screenIndex < 0 || screenIndex >= n {
		logger.Warn("屏幕索引 %d 无效 (共 %d 个), 改用主屏幕", screenIndex, n)
		screenIndex = 0
	}

	bounds := screenshot.GetDisplayBounds(screenIndex)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return "", "", fmt.Errorf("截屏失败: %w", err)
	}

	rawPath := filepath.Join(e.cacheDir, fmt.Sprintf("raw_%d.png", time.Now().UnixNano()))
	f, err := os.Create(rawPath)
	if err != nil {
		return "", "", fmt.Errorf("%w: 创建临时文件 %s: %v", ErrIO, rawPath, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(rawPath)
		return "", "", fmt.Errorf("%w: 写入临时 PNG: %v", ErrCodec, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(rawPath)
		return "", "", fmt.Errorf("%w: 写入临时文件 %s: %v", ErrIO, rawPath, err)
	}

	resolution := fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy())
	return rawPath, resolution, nil
}
