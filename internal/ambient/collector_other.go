//go:build !darwin
// +build !darwin

package ambient

// 非 macOS 平台暂不支持传感器读取，返回空快照
func newPlatformCollector() Collector {
	return noopCollector{}
}
