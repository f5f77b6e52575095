package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"AutoDailyReport/internal/analysis"
	"AutoDailyReport/pkg/models"

	_ "modernc.org/sqlite"
)

// Manager 存储管理器
// 维护产物与分析记录的 sqlite 索引，产物文件本身在图片目录树中
type Manager struct {
	db     *sql.DB
	dbPath string
}

// NewManager 创建存储管理器
func NewManager(dataDir string) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "autodailyreport.db")

	// 注意：modernc.org/sqlite 的驱动名称是 "sqlite" 而不是 "sqlite3"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m := &Manager{
		db:     db,
		dbPath: dbPath,
	}

	if err := m.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return m, nil
}

// initSchema 初始化数据库表结构
func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		file_path TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		resolution TEXT,
		analyzed BOOLEAN DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_timestamp ON artifacts(timestamp);
	CREATE INDEX IF NOT EXISTS idx_artifacts_analyzed ON artifacts(analyzed);
	`

	_, err := m.db.Exec(schema)
	return err
}

// Close 关闭数据库
func (m *Manager) Close() error {
	return m.db.Close()
}

// SaveArtifact 保存产物记录
func (m *Manager) SaveArtifact(art *models.Artifact) error {
	query := `
		INSERT INTO artifacts (timestamp, file_path, file_size, resolution, analyzed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := m.db.Exec(query,
		art.Timestamp,
		art.FilePath,
		art.FileSize,
		art.Resolution,
		art.Analyzed,
		art.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert id: %w", err)
	}

	art.ID = id
	return nil
}

// GetArtifacts 获取指定时间范围的产物
func (m *Manager) GetArtifacts(start, end time.Time) ([]*models.Artifact, error) {
	query := `
		SELECT id, timestamp, file_path, file_size, resolution, analyzed, created_at
		FROM artifacts
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := m.db.Query(query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// GetRecentArtifacts 获取最近的 N 个产物
func (m *Manager) GetRecentArtifacts(limit int) ([]*models.Artifact, error) {
	query := `
		SELECT id, timestamp, file_path, file_size, resolution, analyzed, created_at
		FROM artifacts
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := m.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// scanArtifacts 读取查询结果
func scanArtifacts(rows *sql.Rows) ([]*models.Artifact, error) {
	var artifacts []*models.Artifact
	for rows.Next() {
		art := &models.Artifact{}
		err := rows.Scan(
			&art.ID,
			&art.Timestamp,
			&art.FilePath,
			&art.FileSize,
			&art.Resolution,
			&art.Analyzed,
			&art.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, art)
	}
	return artifacts, rows.Err()
}

// MarkArtifactAnalyzed 标记产物已分析
func (m *Manager) MarkArtifactAnalyzed(id int64) error {
	query := `UPDATE artifacts SET analyzed = 1 WHERE id = ?`
	_, err := m.db.Exec(query, id)
	return err
}

// DeleteOldArtifacts 删除超过保留期的产物（文件、sidecar 与索引记录）
func (m *Manager) DeleteOldArtifacts(retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	query := `SELECT file_path FROM artifacts WHERE timestamp < ?`
	rows, err := m.db.Query(query, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to query old artifacts: %w", err)
	}

	var filePaths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan file path: %w", err)
		}
		filePaths = append(filePaths, path)
	}
	rows.Close()

	// 删除产物文件与 sidecar，错误忽略（索引才是权威状态）
	for _, path := range filePaths {
		os.Remove(path)
		os.Remove(analysis.SidecarPath(path))
	}

	deleteQuery := `DELETE FROM artifacts WHERE timestamp < ?`
	result, err := m.db.Exec(deleteQuery, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old artifacts: %w", err)
	}

	return result.RowsAffected()
}

// GetTodayStats 获取今日统计（截图数 / 已分析数）
func (m *Manager) GetTodayStats() (total int, analyzed int, err error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	err = m.db.QueryRow(`SELECT COUNT(*) FROM artifacts WHERE timestamp >= ?`, startOfDay).Scan(&total)
	if err != nil {
		return 0, 0, err
	}

	err = m.db.QueryRow(`SELECT COUNT(*) FROM artifacts WHERE timestamp >= ? AND analyzed = 1`, startOfDay).Scan(&analyzed)
	if err != nil {
		return 0, 0, err
	}

	return total, analyzed, nil
}

// GetStorageStats 获取存储统计信息
func (m *Manager) GetStorageStats() (*models.StorageStats, error) {
	stats := &models.StorageStats{}

	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(file_size), 0) as total_size,
			MIN(date(timestamp)) as oldest,
			MAX(date(timestamp)) as newest
		FROM artifacts
	`

	var oldest, newest sql.NullString
	err := m.db.QueryRow(query).Scan(
		&stats.TotalArtifacts,
		&stats.TotalSize,
		&oldest,
		&newest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	if oldest.Valid {
		stats.OldestDate = oldest.String
	}
	if newest.Valid {
		stats.NewestDate = newest.String
	}

	return stats, nil
}
