package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"AutoDailyReport/internal/analysis"
	"AutoDailyReport/internal/capture"
	"AutoDailyReport/internal/config"
	"AutoDailyReport/internal/countdown"
	"AutoDailyReport/internal/pathguard"
	"AutoDailyReport/internal/secrets"
	"AutoDailyReport/internal/storage"
	"AutoDailyReport/pkg/logger"
	"AutoDailyReport/pkg/models"

	"github.com/gin-gonic/gin"
)

// Server HTTP API 服务器
// 与托盘菜单驱动同一组服务，供本机脚本和调试使用
type Server struct {
	router     *gin.Engine
	configMgr  *config.Manager
	storageMgr *storage.Manager
	countdown  *countdown.Scheduler
	processor  *capture.Processor
	engine     *capture.Engine
	analyzer   capture.Analyzer
	store      secrets.Store
	addr       string
	version    string
	httpServer *http.Server
}

// NewServer 创建 API 服务器
func NewServer(
	configMgr *config.Manager,
	storageMgr *storage.Manager,
	cd *countdown.Scheduler,
	processor *capture.Processor,
	engine *capture.Engine,
	analyzer capture.Analyzer,
	store secrets.Store,
	version string,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	serverCfg := configMgr.GetServer()
	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)

	s := &Server{
		router:     router,
		configMgr:  configMgr,
		storageMgr: storageMgr,
		countdown:  cd,
		processor:  processor,
		engine:     engine,
		analyzer:   analyzer,
		store:      store,
		addr:       addr,
		version:    version,
	}

	s.setupRoutes()
	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		// 系统信息
		api.GET("/version", s.handleGetVersion)

		// 配置管理
		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handleUpdateConfig)

		// 倒计时控制
		api.POST("/countdown/start", s.handleCountdownStart)
		api.POST("/countdown/stop", s.handleCountdownStop)
		api.POST("/countdown/reset", s.handleCountdownReset)
		api.POST("/countdown/capturing", s.handleCountdownCapturing)
		api.GET("/countdown/remaining", s.handleCountdownRemaining)

		// 截图产物
		api.GET("/screenshots", s.handleGetArtifacts)
		api.POST("/screenshots/capture", s.handleCaptureNow)
		api.POST("/screenshots/process", s.handleProcess)
		api.POST("/screenshots/analyze", s.handleAnalyze)

		// API 密钥
		api.PUT("/secret", s.handleSetSecret)
		api.GET("/secret", s.handleHasSecret)
		api.DELETE("/secret", s.handleDeleteSecret)

		// 统计数据
		api.GET("/stats/today", s.handleGetTodayStats)
		api.GET("/stats/storage", s.handleGetStorageStats)
	}
}

// Handler 返回底层 http.Handler，测试用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动服务器（阻塞直到关闭）
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	logger.Info("🌐 API 服务器启动: http://%s", s.addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}

	logger.Info("🛑 正在关闭 API 服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Warn("服务器关闭错误: %v", err)
		return err
	}

	logger.Info("✅ API 服务器已关闭")
	return nil
}

// ===== 处理函数 =====

// handleGetVersion 获取版本信息
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.version,
		"name":    "AutoDailyReport",
	})
}

// handleGetConfig 获取配置
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.configMgr.Get())
}

// handleUpdateConfig 更新配置
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var newConfig models.AppConfig
	if err := c.ShouldBindJSON(&newConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.configMgr.Update(func(cfg *models.AppConfig) {
		*cfg = newConfig
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "配置已更新"})
}

// handleCountdownStart 启动倒计时
// 未指定间隔时使用配置中的截屏间隔
func (s *Server) handleCountdownStart(c *gin.Context) {
	var req struct {
		IntervalSeconds uint64 `json:"interval_seconds"`
	}
	_ = c.ShouldBindJSON(&req)

	if req.IntervalSeconds == 0 {
		req.IntervalSeconds = s.configMgr.GetCapture().IntervalSeconds
	}

	if err := s.countdown.Start(req.IntervalSeconds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "倒计时已启动",
		"interval_seconds": req.IntervalSeconds,
	})
}

// handleCountdownStop 停止倒计时
func (s *Server) handleCountdownStop(c *gin.Context) {
	s.countdown.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "倒计时已停止"})
}

// handleCountdownReset 重置倒计时
func (s *Server) handleCountdownReset(c *gin.Context) {
	s.countdown.Reset()
	c.JSON(http.StatusOK, gin.H{
		"message":           "倒计时已重置",
		"remaining_seconds": s.countdown.Remaining(),
	})
}

// handleCountdownCapturing 设置截屏进行中标志
func (s *Server) handleCountdownCapturing(c *gin.Context) {
	var req struct {
		IsCapturing bool `json:"is_capturing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.countdown.SetCapturing(req.IsCapturing)
	c.JSON(http.StatusOK, gin.H{"is_capturing": req.IsCapturing})
}

// handleCountdownRemaining 查询剩余秒数
func (s *Server) handleCountdownRemaining(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":           s.countdown.IsRunning(),
		"capturing":         s.countdown.IsCapturing(),
		"remaining_seconds": s.countdown.Remaining(),
	})
}

// handleGetArtifacts 获取最近的产物列表
func (s *Server) handleGetArtifacts(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	artifacts, err := s.storageMgr.GetRecentArtifacts(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, artifacts)
}

// handleCaptureNow 立即触发一次截屏周期
func (s *Server) handleCaptureNow(c *gin.Context) {
	if s.engine == nil || !s.engine.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "截屏引擎未运行"})
		return
	}

	s.engine.TriggerCycle()
	c.JSON(http.StatusAccepted, gin.H{"message": "截屏周期已触发"})
}

// handleProcess 处理一张原始截图为产物
func (s *Server) handleProcess(c *gin.Context) {
	var req struct {
		SourcePath string `json:"source_path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dest, err := s.processor.Process(req.SourcePath)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"artifact_path": dest})
}

// handleAnalyze 分析一张产物图片
// model / prompt 缺省时取配置中的 AI 设置
func (s *Server) handleAnalyze(c *gin.Context) {
	var req struct {
		ImagePath string `json:"image_path" binding:"required"`
		Model     string `json:"model"`
		Prompt    string `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	aiCfg := s.configMgr.GetAI()
	if req.Model == "" {
		req.Model = aiCfg.Model
	}
	if req.Prompt == "" {
		req.Prompt = aiCfg.Prompt
	}

	text, err := s.analyzer.Analyze(req.ImagePath, req.Model, req.Prompt)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis":     text,
		"sidecar_path": analysis.SidecarPath(req.ImagePath),
	})
}

// handleSetSecret 保存 API 密钥
func (s *Server) handleSetSecret(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.Set(req.APIKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API 密钥已保存"})
}

// handleHasSecret 查询密钥是否存在（不回显密钥本身）
func (s *Server) handleHasSecret(c *gin.Context) {
	has, err := s.store.Has()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"has_secret": has})
}

// handleDeleteSecret 删除 API 密钥
func (s *Server) handleDeleteSecret(c *gin.Context) {
	if err := s.store.Delete(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API 密钥已删除"})
}

// handleGetTodayStats 获取今日统计
func (s *Server) handleGetTodayStats(c *gin.Context) {
	total, analyzed, err := s.storageMgr.GetTodayStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"analyzed": analyzed,
	})
}

// handleGetStorageStats 获取存储统计
func (s *Server) handleGetStorageStats(c *gin.Context) {
	stats, err := s.storageMgr.GetStorageStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// statusForError 将管线的错误分类映射到 HTTP 状态码
func statusForError(err error) int {
	switch {
	case errors.Is(err, pathguard.ErrPathRejected):
		return http.StatusBadRequest
	case errors.Is(err, secrets.ErrCredentialMissing):
		return http.StatusPreconditionFailed
	case errors.Is(err, analysis.ErrNetwork),
		errors.Is(err, analysis.ErrHTTP),
		errors.Is(err, analysis.ErrProvider),
		errors.Is(err, analysis.ErrEmptyCompletion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
