package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrSequenceExhausted 同一秒内 999 个序号全部被占用
var ErrSequenceExhausted = errors.New("文件序号已用尽")

// maxSequence 序号上限（001-999）
const maxSequence = 999

// DateDir 返回日期分区目录 <root>/<YYYY-MM-DD>
func DateDir(root string, now time.Time) string {
	return filepath.Join(root, now.Format("2006-01-02"))
}

// Stem 返回基于时间戳的文件名主干 <YYYYMMDD_HHMMSS>
func Stem(now time.Time) string {
	return now.Format("20060102_150405")
}

// NextPath 在目录中寻找第一个未被占用的序号路径
// 文件名格式：<stem>_<NNN><ext>，NNN 从 001 开始递增
//
// 这是 check-then-use 方案：检查与创建之间存在竞争窗口。
// 截屏流程由调用方串行化（单 worker），因此视为已知限制而非缺陷；
// 如需多写入者，应改用 O_EXCL 原子创建循环。
func NextPath(dir, stem, ext string) (string, error) {
	for seq := 1; seq <= maxSequence; seq++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%03d%s", stem, seq, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s 下 %s_001%s 至 %s_%03d%s 均已存在",
		ErrSequenceExhausted, dir, stem, ext, stem, maxSequence, ext)
}
