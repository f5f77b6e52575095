package tray

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"AutoDailyReport/internal/capture"
	"AutoDailyReport/internal/config"
	"AutoDailyReport/internal/countdown"
	"AutoDailyReport/pkg/logger"

	"github.com/getlantern/systray"
)

// Event 托盘菜单事件
// 封闭枚举：菜单项点击统一转为事件送入单一分发循环，不走字符串路由
type Event int

const (
	EventOpenFolder Event = iota
	EventCaptureNow
	EventStartCountdown
	EventStopCountdown
	EventQuit
)

// TrayApp 托盘应用
// 同时充当倒计时调度器的状态指示器：标题即倒计时/截屏中文本
type TrayApp struct {
	configMgr    *config.Manager
	countdown    *countdown.Scheduler
	engine       *capture.Engine
	artifactRoot string
	onExit       func()

	// 托盘句柄就绪前 SetStatus 只记录不渲染
	ready atomic.Bool
	mu    sync.Mutex
}

// NewTrayApp 创建托盘应用
func NewTrayApp(
	configMgr *config.Manager,
	cd *countdown.Scheduler,
	engine *capture.Engine,
	artifactRoot string,
	onExit func(),
) *TrayApp {
	return &TrayApp{
		configMgr:    configMgr,
		countdown:    cd,
		engine:       engine,
		artifactRoot: artifactRoot,
		onExit:       onExit,
	}
}

// SetStatus 渲染倒计时状态到托盘标题
// 只由 tick goroutine 和截屏标志转换调用，锁内不做任何 I/O 之外的事
func (t *TrayApp) SetStatus(text string) {
	if !t.ready.Load() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	systray.SetTitle(text)
	systray.SetTooltip("AutoDailyReport - 自动截屏日报工具")
}

// Run 运行托盘应用（阻塞直到退出）
func (t *TrayApp) Run() {
	systray.Run(t.onReady, t.onQuit)
}

// onReady 托盘准备就绪
func (t *TrayApp) onReady() {
	systray.SetIcon(getIcon())
	systray.SetTitle("AutoDailyReport")
	systray.SetTooltip("AutoDailyReport - 自动截屏日报工具\n点击右键查看选项")
	t.ready.Store(true)

	mOpenFolder := systray.AddMenuItem("📂 打开截图目录", "在文件管理器中打开产物目录")
	mCaptureNow := systray.AddMenuItem("📸 立即截屏", "立即执行一次截屏周期")

	systray.AddSeparator()

	mStart := systray.AddMenuItem("▶️ 启动倒计时", "按配置的间隔开始倒计时截屏")
	mStop := systray.AddMenuItem("⏹ 停止倒计时", "停止倒计时并清空指示器")

	systray.AddSeparator()

	mQuit := systray.AddMenuItem("❌ 退出程序", "退出 AutoDailyReport")

	// 菜单点击统一汇入事件通道，由单个分发循环串行消费
	events := make(chan Event)
	forward := func(ch <-chan struct{}, ev Event) {
		go func() {
			for range ch {
				events <- ev
			}
		}()
	}
	forward(mOpenFolder.ClickedCh, EventOpenFolder)
	forward(mCaptureNow.ClickedCh, EventCaptureNow)
	forward(mStart.ClickedCh, EventStartCountdown)
	forward(mStop.ClickedCh, EventStopCountdown)
	forward(mQuit.ClickedCh, EventQuit)

	go t.dispatchLoop(events)

	// 配置了自动启动时直接进入倒计时
	if t.configMgr.GetCapture().AutoStart {
		interval := t.configMgr.GetCapture().IntervalSeconds
		if err := t.countdown.Start(interval); err != nil {
			logger.Warn("自动启动倒计时失败: %v", err)
		} else {
			logger.Info("✅ 倒计时已自动启动, 间隔 %d 秒", interval)
		}
	}
}

// dispatchLoop 单一事件分发循环
// 所有菜单动作在这里串行执行，事件类型封闭，新菜单项必须新增枚举值
func (t *TrayApp) dispatchLoop(events <-chan Event) {
	for ev := range events {
		switch ev {
		case EventOpenFolder:
			t.openFolder()

		case EventCaptureNow:
			logger.Info("📸 托盘触发立即截屏")
			t.engine.TriggerCycle()

		case EventStartCountdown:
			interval := t.configMgr.GetCapture().IntervalSeconds
			if err := t.countdown.Start(interval); err != nil {
				logger.Error("启动倒计时失败: %v", err)
			}

		case EventStopCountdown:
			t.countdown.Stop()

		case EventQuit:
			logger.Info("🛑 用户请求退出...")
			systray.Quit()
			return
		}
	}
}

// onQuit 托盘退出
func (t *TrayApp) onQuit() {
	t.ready.Store(false)

	if t.countdown.IsRunning() {
		t.countdown.Stop()
	}
	if t.engine.IsRunning() {
		t.engine.Stop()
	}

	if t.onExit != nil {
		t.onExit()
	}

	logger.Info("👋 AutoDailyReport 已退出")
}

// openFolder 在系统文件管理器中打开产物目录
func (t *TrayApp) openFolder() {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("explorer", t.artifactRoot)
	case "darwin":
		cmd = exec.Command("open", t.artifactRoot)
	default: // linux
		cmd = exec.Command("xdg-open", t.artifactRoot)
	}

	if err := cmd.Start(); err != nil {
		logger.Error("无法打开产物目录: %v", err)
	}
}

// getIcon 获取托盘图标
//
// Windows 托盘推荐 .ico，macOS / Linux 用 .png。
// 以程序所在目录为基准查找 assets 目录，找不到时回退到内置 PNG 图标。
func getIcon() []byte {
	exePath, err := os.Executable()
	baseDir := "."
	if err == nil {
		baseDir = filepath.Dir(exePath)
	}

	var candidates []string
	if runtime.GOOS == "windows" {
		candidates = []string{
			filepath.Join(baseDir, "assets", "AutoDailyReport.ico"),
		}
	} else {
		candidates = []string{
			filepath.Join(baseDir, "assets", "AutoDailyReport.png"),
			filepath.Join(baseDir, "assets", "AutoDailyReport.ico"),
		}
	}

	for _, iconPath := range candidates {
		if data, err := os.ReadFile(iconPath); err == nil && len(data) > 0 {
			logger.Info("使用托盘图标: %s", iconPath)
			return data
		}
	}

	logger.Warn("未找到自定义图标文件, 使用内置默认图标")
	// 内置备用图标：16x16 蓝色方块 PNG
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x91, 0x68,
		0x36, 0x00, 0x00, 0x00, 0x19, 0x49, 0x44, 0x41,
		0x54, 0x28, 0x91, 0x63, 0x64, 0x60, 0xF8, 0x0F,
		0x04, 0x0C, 0x0C, 0x8C, 0x40, 0x06, 0x06, 0x46,
		0x20, 0x03, 0x03, 0x23, 0x00, 0x00, 0x0F, 0x70,
		0x01, 0x18, 0xE5, 0xD4, 0x8F, 0x4F, 0x00, 0x00,
		0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42,
		0x60, 0x82,
	}
}
