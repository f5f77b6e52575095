package ambient

import "AutoDailyReport/pkg/models"

// Collector 环境上下文采集器
// 尽力而为：任何采集失败都只产生空快照，从不让调用失败
type Collector interface {
	Collect() models.ContextInfo
}

// NewCollector 返回平台默认的采集器
// 不支持的平台返回空快照实现，核心代码无需按平台分支
func NewCollector() Collector {
	return newPlatformCollector()
}

// noopCollector 不支持的平台：永远返回空快照
type noopCollector struct{}

func (noopCollector) Collect() models.ContextInfo {
	return models.ContextInfo{}
}
