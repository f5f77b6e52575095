package countdown

import (
	"fmt"
	"sync/atomic"
	"time"

	"AutoDailyReport/pkg/logger"
)

// Presenter 状态指示器（托盘标题/提示文本）
// 实现方须保证 SetStatus 互斥且不跨 I/O 持锁
type Presenter interface {
	SetStatus(text string)
}

// capturingIndicator 截屏进行中的指示文本
const capturingIndicator = "📸 截屏中..."

// Scheduler 倒计时调度器
//
// 状态机：Idle -> Running（Start，重入为 no-op）-> Idle（Stop）。
// Running 期间由内部 goroutine 每秒走一拍，下一次唤醒时间采用
// 固定步进累加（next = next + 1s）而不是基于"当前时间"，
// 处理抖动不会随周期数累积成漂移。
//
// 各状态字段相互独立地原子读写，不用单把锁覆盖多个字段；
// Start 与 Reset 并发时 interval 与 remaining 的瞬时不一致是可接受的，
// 因为运行期间只有 tick goroutine 写 remaining。
type Scheduler struct {
	presenter Presenter
	onCycle   func() // remaining 归零时触发, 必须立即返回
	tick      time.Duration

	running   atomic.Bool
	interval  atomic.Uint64
	remaining atomic.Uint64
	capturing atomic.Bool

	// gen 每次 Start 递增, 旧的 tick goroutine 据此识别自己已被接管
	gen atomic.Uint64
}

// NewScheduler 创建倒计时调度器
// onCycle 在每次倒计时归零时被 tick goroutine 调用，可以为 nil
func NewScheduler(presenter Presenter, onCycle func()) *Scheduler {
	return newScheduler(presenter, onCycle, time.Second)
}

// newScheduler 测试用入口，tick 周期可注入
func newScheduler(presenter Presenter, onCycle func(), tick time.Duration) *Scheduler {
	return &Scheduler{
		presenter: presenter,
		onCycle:   onCycle,
		tick:      tick,
	}
}

// Start 启动倒计时
// 已在运行时为 no-op，间隔保持首次启动时的值
func (s *Scheduler) Start(intervalSeconds uint64) error {
	if intervalSeconds == 0 {
		return fmt.Errorf("倒计时间隔必须大于 0")
	}

	if !s.running.CompareAndSwap(false, true) {
		logger.Debug("倒计时已在运行, 忽略重复启动")
		return nil
	}

	s.interval.Store(intervalSeconds)
	s.remaining.Store(intervalSeconds)

	if !s.capturing.Load() {
		s.presenter.SetStatus(formatRemaining(intervalSeconds))
	}

	go s.tickLoop(s.gen.Add(1))

	logger.Info("倒计时已启动, 间隔: %d 秒", intervalSeconds)
	return nil
}

// Stop 停止倒计时
// tick goroutine 最多一个 tick 内观察到标志，完成最终的归零与指示器清空后退出
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.remaining.Store(0)

	logger.Info("倒计时已停止")
}

// Reset 将 remaining 回拨到 interval，不改变运行状态
func (s *Scheduler) Reset() {
	s.remaining.Store(s.interval.Load())
}

// SetCapturing 设置截屏进行中标志
// 置位时立即渲染"截屏中"并冻结倒计时渲染；
// 清除后下一个 tick 恢复正常倒计时显示
func (s *Scheduler) SetCapturing(capturing bool) {
	s.capturing.Store(capturing)
	if capturing {
		s.presenter.SetStatus(capturingIndicator)
	}
}

// IsCapturing 查询截屏标志
func (s *Scheduler) IsCapturing() bool {
	return s.capturing.Load()
}

// IsRunning 查询运行状态
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Remaining 非阻塞读取剩余秒数，Idle 时返回最后存储的值（停止后为 0）
func (s *Scheduler) Remaining() uint64 {
	return s.remaining.Load()
}

// tickLoop 每秒一拍的倒计时循环
// 停止标志在睡眠前后各检查一次，最坏停止延迟为一个 tick；
// 最终的归零与指示器清空由本 goroutine 在退出前完成，
// 保证清空之后不再有任何指示器更新
func (s *Scheduler) tickLoop(myGen uint64) {
	next := time.Now().Add(s.tick)
	for {
		if s.stopped(myGen) {
			return
		}
		time.Sleep(time.Until(next))
		// 睡眠期间可能有停止请求
		if s.stopped(myGen) {
			return
		}

		rem := s.remaining.Load()
		if rem > 0 {
			rem--
			s.remaining.Store(rem)
		}

		if !s.capturing.Load() {
			s.presenter.SetStatus(formatRemaining(rem))
		}

		if rem == 0 && s.running.Load() && s.gen.Load() == myGen {
			s.remaining.Store(s.interval.Load())
			if s.onCycle != nil {
				s.onCycle()
			}
		}

		next = next.Add(s.tick)
	}
}

// stopped 判断本 goroutine 是否应当退出
// 停止时由本 goroutine 完成最终收尾；被新一轮 Start 接管时静默退出
func (s *Scheduler) stopped(myGen uint64) bool {
	if s.gen.Load() != myGen {
		return true
	}
	if !s.running.Load() {
		s.remaining.Store(0)
		s.presenter.SetStatus("")
		return true
	}
	return false
}

// formatRemaining 将剩余秒数渲染为 MM:SS
func formatRemaining(seconds uint64) string {
	return fmt.Sprintf("⏳ %02d:%02d", seconds/60, seconds%60)
}
