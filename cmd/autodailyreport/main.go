package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"AutoDailyReport/internal/ambient"
	"AutoDailyReport/internal/analysis"
	"AutoDailyReport/internal/capture"
	"AutoDailyReport/internal/config"
	"AutoDailyReport/internal/countdown"
	"AutoDailyReport/internal/pathguard"
	"AutoDailyReport/internal/scheduler"
	"AutoDailyReport/internal/secrets"
	"AutoDailyReport/internal/server"
	"AutoDailyReport/internal/singleton"
	"AutoDailyReport/internal/storage"
	"AutoDailyReport/internal/tray"
	"AutoDailyReport/pkg/logger"
)

const (
	AppName    = "AutoDailyReport"
	AppVersion = "1.0.0"
)

// presenterFunc 把函数适配成倒计时状态指示器
type presenterFunc func(string)

func (f presenterFunc) SetStatus(text string) { f(text) }

// getAppDataDir 获取应用数据目录
// Windows: %LOCALAPPDATA%\AutoDailyReport
// 其他平台或环境变量不存在时使用当前工作目录
func getAppDataDir() string {
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, AppName)
	}

	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("❌ 无法获取工作目录: %v", err)
	}
	return workDir
}

func main() {
	// 单实例检测 - 防止程序重复启动
	mutex, err := singleton.EnsureSingleInstance(AppName)
	if err != nil {
		os.Exit(1)
	}
	defer mutex.Close()

	// 应用数据目录
	appDataDir := getAppDataDir()
	if err := os.MkdirAll(appDataDir, 0755); err != nil {
		log.Fatalf("❌ 创建应用数据目录失败 %s: %v", appDataDir, err)
	}

	// 初始化配置管理器
	configPath := filepath.Join(appDataDir, "data", "config.json")
	configMgr, err := config.NewManager(configPath)
	if err != nil {
		log.Fatalf("❌ 初始化配置管理器失败: %v", err)
	}
	fmt.Println("✅ 配置管理器初始化完成")

	// 目录结构
	storageCfg := configMgr.GetStorage()
	artifactRoot := filepath.Join(storageCfg.PicturesRoot, "auto-daily-report")
	cacheDir := filepath.Join(storageCfg.DataDir, "cache")
	logsDir := filepath.Join(storageCfg.DataDir, "logs")
	for _, dir := range []string{storageCfg.DataDir, cacheDir, logsDir, artifactRoot} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("❌ 创建目录失败 %s: %v", dir, err)
		}
	}
	fmt.Println("✅ 目录结构初始化完成")

	// 初始化日志系统
	if err := logger.Init(logsDir, false); err != nil {
		log.Printf("⚠️ 日志系统初始化失败: %v, 使用控制台输出", err)
	} else {
		fmt.Println("✅ 日志系统初始化完成")
		logger.Info("==================== %s %s 启动 ====================", AppName, AppVersion)
		logger.Info("应用数据目录: %s", appDataDir)
		logger.Info("产物目录: %s", artifactRoot)
	}

	// 初始化存储管理器
	storageMgr, err := storage.NewManager(storageCfg.DataDir)
	if err != nil {
		log.Fatalf("❌ 初始化存储管理器失败: %v", err)
	}
	fmt.Println("✅ 存储管理器初始化完成")

	// 路径策略：来源只认临时/缓存目录，分析输入只认产物目录树
	sourcePolicy := pathguard.NewPolicy("temp-and-cache", os.TempDir(), cacheDir)
	artifactPolicy := pathguard.NewPolicy("artifact-root", artifactRoot)

	// 截图处理器
	processor := capture.NewProcessor(sourcePolicy, artifactRoot)

	// 凭据存储与环境采集
	secretStore := secrets.NewStore(storageCfg.DataDir)
	collector := ambient.NewCollector()

	// AI 分析客户端
	analyzer := analysis.NewClient(artifactPolicy, secretStore, collector, configMgr.GetAI())
	fmt.Println("✅ AI 分析客户端初始化完成")

	// 截屏引擎与倒计时调度器
	// 托盘在最后才创建，这里用转发器解开装配顺序
	var engine *capture.Engine
	var trayApp *tray.TrayApp

	cd := countdown.NewScheduler(presenterFunc(func(text string) {
		if trayApp != nil {
			trayApp.SetStatus(text)
		}
	}), func() {
		engine.TriggerCycle()
	})
	engine = capture.NewEngine(configMgr, storageMgr, processor, analyzer, cd, cacheDir)
	if err := engine.Start(); err != nil {
		log.Fatalf("❌ 启动截屏引擎失败: %v", err)
	}
	fmt.Println("✅ 截屏引擎初始化完成")

	// 后台任务调度器（保留期清理）
	sched := scheduler.NewScheduler(configMgr, storageMgr)
	if err := sched.Start(); err != nil {
		log.Fatalf("❌ 启动任务调度器失败: %v", err)
	}

	// API 服务器
	apiServer := server.NewServer(configMgr, storageMgr, cd, processor, engine, analyzer, secretStore, AppVersion)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("❌ API 服务器错误: %v", err)
		}
	}()

	// 系统托盘
	fmt.Println("🎯 启动系统托盘...")
	trayApp = tray.NewTrayApp(
		configMgr,
		cd,
		engine,
		artifactRoot,
		func() {
			fmt.Println("📦 正在清理资源...")
			sched.Stop()
			apiServer.Shutdown()
			storageMgr.Close()
			logger.Close()
			fmt.Println("✅ 资源清理完成")
		},
	)

	// 运行托盘应用（阻塞）
	trayApp.Run()
}
