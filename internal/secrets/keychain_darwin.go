//go:build darwin
// +build darwin

package secrets

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// KeychainStore macOS 钥匙串凭据存储
// 通过系统 security 命令读写 generic-password 项
type KeychainStore struct{}

// NewStore 返回平台默认的凭据存储（macOS 使用钥匙串）
func NewStore(dataDir string) Store {
	return &KeychainStore{}
}

// Set 写入密钥（-U 表示已存在时更新）
func (s *KeychainStore) Set(secret string) error {
	out, err := exec.Command("security", "add-generic-password",
		"-U", "-s", serviceName, "-a", accountName, "-w", secret).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: security add-generic-password: %v: %s",
			ErrCredentialStore, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Get 读取密钥，钥匙串里不存在时返回 ErrCredentialMissing
func (s *KeychainStore) Get() (string, error) {
	out, err := exec.Command("security", "find-generic-password",
		"-s", serviceName, "-a", accountName, "-w").Output()
	if err != nil {
		// security 找不到项时退出码为 44 (errSecItemNotFound)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return "", ErrCredentialMissing
		}
		return "", fmt.Errorf("%w: security find-generic-password: %v", ErrCredentialStore, err)
	}
	secret := strings.TrimSpace(string(out))
	if secret == "" {
		return "", ErrCredentialMissing
	}
	return secret, nil
}

// Has 检查密钥是否存在
func (s *KeychainStore) Has() (bool, error) {
	_, err := s.Get()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrCredentialMissing) {
		return false, nil
	}
	return false, err
}

// Delete 删除密钥，不存在视为成功
func (s *KeychainStore) Delete() error {
	err := exec.Command("security", "delete-generic-password",
		"-s", serviceName, "-a", accountName).Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil
		}
		return fmt.Errorf("%w: security delete-generic-password: %v", ErrCredentialStore, err)
	}
	return nil
}
