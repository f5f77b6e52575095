package capture

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"time"

	_ "image/gif"
	_ "image/png"

	"AutoDailyReport/internal/artifact"
	"AutoDailyReport/internal/pathguard"
	"AutoDailyReport/pkg/logger"

	"github.com/nfnt/resize"
)

var (
	// ErrIO 目录创建、文件读写失败
	ErrIO = errors.New("文件操作失败")
	// ErrCodec 图像解码或编码失败
	ErrCodec = errors.New("图像编解码失败")
)

const (
	// targetWidth 产物最大宽度，超过则等比缩小
	targetWidth = 1920
	// jpegQuality JPEG 压缩质量
	jpegQuality = 80
)

// Processor 截图处理器
// 消费一张原始截图：校验来源路径 -> 缩放压缩 -> 写入日期分区目录 -> 删除原始文件
type Processor struct {
	sourcePolicy *pathguard.Policy
	outputRoot   string // <PicturesRoot>/auto-daily-report
}

// NewProcessor 创建截图处理器
// sourcePolicy 限定可接受的原始截图来源（系统临时目录和应用缓存目录）
func NewProcessor(sourcePolicy *pathguard.Policy, outputRoot string) *Processor {
	return &Processor{
		sourcePolicy: sourcePolicy,
		outputRoot:   outputRoot,
	}
}

// OutputRoot 返回产物根目录
func (p *Processor) OutputRoot() string {
	return p.outputRoot
}

// Process 处理一张原始截图，返回产物路径
// 同步执行解码/缩放/编码，必须运行在 worker goroutine 上，不能阻塞倒计时循环
func (p *Processor) Process(rawPath string) (string, error) {
	// 1. 来源路径校验，失败原样向上传递
	src, err := p.sourcePolicy.Validate(rawPath)
	if err != nil {
		return "", err
	}

	// 2. 确保日期分区目录存在
	now := time.Now()
	dateDir := artifact.DateDir(p.outputRoot, now)
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("%w: 创建目录 %s: %v", ErrIO, dateDir, err)
	}

	// 3. 计算目标路径（时间戳主干 + 三位序号）
	dest, err := artifact.NextPath(dateDir, artifact.Stem(now), ".jpg")
	if err != nil {
		return "", err
	}

	// 4. 解码原始图像
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("%w: 读取源文件 %s: %v", ErrIO, src, err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("%w: 解码 %s: %v", ErrCodec, src, err)
	}

	// 5. 宽度超过 1920 时等比缩放（Lanczos3），否则原样保留
	if w := img.Bounds().Dx(); w > targetWidth {
		h := img.Bounds().Dy()
		newHeight := uint(math.Round(float64(h) * targetWidth / float64(w)))
		img = resize.Resize(targetWidth, newHeight, img, resize.Lanczos3)
	}

	// 6. JPEG 质量 80 写入目标路径
	// 编码失败时可能留下写了一半的文件，调用方以返回错误为准，不视其为有效产物
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("%w: 创建文件 %s: %v", ErrIO, dest, err)
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		out.Close()
		return "", fmt.Errorf("%w: 编码 JPEG %s: %v", ErrCodec, dest, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%w: 写入文件 %s: %v", ErrIO, dest, err)
	}

	// 7. 尽力删除原始文件，失败只记日志，产物已写入即视为成功
	if err := os.Remove(src); err != nil {
		logger.Warn("删除原始截图失败: %s: %v", src, err)
	}

	return dest, nil
}
