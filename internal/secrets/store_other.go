//go:build !darwin
// +build !darwin

package secrets

// NewStore 返回平台默认的凭据存储（非 macOS 使用 0600 文件）
func NewStore(dataDir string) Store {
	return NewFileStore(dataDir)
}
