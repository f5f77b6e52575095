package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrCredentialMissing 密钥尚未设置
	ErrCredentialMissing = errors.New("API 密钥未设置")
	// ErrCredentialStore 凭据存储本身访问失败
	ErrCredentialStore = errors.New("凭据存储访问失败")
)

// 固定的 service + account 组合，核心只认这一个密钥
const (
	serviceName = "auto-daily-report"
	accountName = "api-key"
)

// Store 凭据存储
// 核心从不缓存密钥，每次调用即取即用
type Store interface {
	Set(secret string) error
	Get() (string, error)
	Has() (bool, error)
	Delete() error
}

// FileStore 基于文件的凭据存储（0600 权限）
// 在没有系统钥匙串的平台上作为后备实现
type FileStore struct {
	path string
}

// NewFileStore 创建文件凭据存储，密钥保存在 <dataDir>/credentials/ 下
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{
		path: filepath.Join(dataDir, "credentials", serviceName+"_"+accountName),
	}
}

// Set 写入密钥
func (s *FileStore) Set(secret string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: 创建目录 %s: %v", ErrCredentialStore, dir, err)
	}
	if err := os.WriteFile(s.path, []byte(secret), 0600); err != nil {
		return fmt.Errorf("%w: 写入 %s: %v", ErrCredentialStore, s.path, err)
	}
	return nil
}

// Get 读取密钥，未设置时返回 ErrCredentialMissing
func (s *FileStore) Get() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrCredentialMissing
		}
		return "", fmt.Errorf("%w: 读取 %s: %v", ErrCredentialStore, s.path, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", ErrCredentialMissing
	}
	return secret, nil
}

// Has 检查密钥是否存在
func (s *FileStore) Has() (bool, error) {
	_, err := s.Get()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrCredentialMissing) {
		return false, nil
	}
	return false, err
}

// Delete 删除密钥，密钥不存在视为成功
func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: 删除 %s: %v", ErrCredentialStore, s.path, err)
	}
	return nil
}
