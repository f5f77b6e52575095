package models

import "time"

// Artifact 截图产物记录
type Artifact struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	FilePath   string    `json:"file_path"`
	FileSize   int64     `json:"file_size"`
	Resolution string    `json:"resolution"` // 如 "1920x1080"
	Analyzed   bool      `json:"analyzed"`
	CreatedAt  time.Time `json:"created_at"`
}

// ContextInfo 环境上下文快照（每次分析时现采，不单独持久化）
type ContextInfo struct {
	WifiSSID string    `json:"wifi_ssid,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Location 地理坐标
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsEmpty 判断快照是否没有任何可用字段
func (c ContextInfo) IsEmpty() bool {
	return c.WifiSSID == "" && c.Location == nil
}

// AnalysisResult 分析结果 sidecar，与产物同名、扩展名为 .json
type AnalysisResult struct {
	Timestamp time.Time   `json:"timestamp"`
	Model     string      `json:"model"`
	Context   ContextInfo `json:"context"`
	Analysis  string      `json:"analysis"`
}

// StorageStats 存储统计信息
type StorageStats struct {
	TotalArtifacts int    `json:"total_artifacts"`
	TotalSize      int64  `json:"total_size"`
	OldestDate     string `json:"oldest_date"`
	NewestDate     string `json:"newest_date"`
}
