package models

import (
	"os"
	"path/filepath"
)

// AppConfig 应用程序配置
type AppConfig struct {
	// 截屏配置
	Capture CaptureConfig `json:"capture"`

	// AI 配置
	AI AIConfig `json:"ai"`

	// 存储配置
	Storage StorageConfig `json:"storage"`

	// 服务器配置
	Server ServerConfig `json:"server"`
}

// CaptureConfig 截屏配置
type CaptureConfig struct {
	IntervalSeconds uint64 `json:"interval_seconds"` // 截屏周期（秒）
	ScreenIndex     int    `json:"screen_index"`     // 截取的屏幕索引
	AutoStart       bool   `json:"auto_start"`       // 启动时自动开始倒计时
	AutoAnalyze     bool   `json:"auto_analyze"`     // 截屏后自动调用 AI 分析
}

// AIConfig AI 配置
type AIConfig struct {
	Model       string  `json:"model"`       // 模型名称
	Endpoint    string  `json:"endpoint"`    // 多模态 chat-completion 端点
	Prompt      string  `json:"prompt"`      // 分析提示词
	MaxTokens   int     `json:"max_tokens"`  // 最大输出 token 数
	Temperature float32 `json:"temperature"` // 温度参数
}

// StorageConfig 存储配置
type StorageConfig struct {
	DataDir       string `json:"data_dir"`       // 应用数据目录（数据库、日志、缓存）
	PicturesRoot  string `json:"pictures_root"`  // 图片根目录（截图产物保存于此）
	RetentionDays int    `json:"retention_days"` // 截图保留天数
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `json:"host"` // 主机地址
	Port int    `json:"port"` // 端口号
}

// DefaultConfig 返回默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Capture: CaptureConfig{
			IntervalSeconds: 600,
			ScreenIndex:     0,
			AutoStart:       false,
			AutoAnalyze:     true,
		},
		AI: AIConfig{
			Model:       "gpt-4o",
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Prompt:      "请描述这张屏幕截图中正在进行的工作内容，简明扼要。",
			MaxTokens:   1024,
			Temperature: 0.1,
		},
		Storage: StorageConfig{
			DataDir:       "./data",
			PicturesRoot:  defaultPicturesRoot(),
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 9528,
		},
	}
}

// defaultPicturesRoot 返回用户图片目录
// 获取用户主目录失败时退回当前工作目录
func defaultPicturesRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Pictures")
}
