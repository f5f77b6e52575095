package analysis

import "errors"

// 分析调用的错误分类，对调用方全部终结本次调用，核心不做任何自动重试
var (
	// ErrNetwork 传输层失败，尚未拿到响应
	ErrNetwork = errors.New("网络请求失败")
	// ErrHTTP 非 2xx 响应，按状态码类别给出固定提示，响应体永不透出
	ErrHTTP = errors.New("AI 服务返回错误")
	// ErrProvider 2xx 响应但信封中携带逻辑错误
	ErrProvider = errors.New("AI 服务返回业务错误")
	// ErrEmptyCompletion 2xx 且无错误字段，但没有任何可用文本
	ErrEmptyCompletion = errors.New("AI 未返回任何内容")
	// ErrSerialization sidecar 编码失败
	ErrSerialization = errors.New("结果序列化失败")
	// ErrIO 图片读取或 sidecar 写入失败
	ErrIO = errors.New("文件操作失败")
)

// httpErrorHint 按状态码类别选择固定提示
// 响应体可能回显请求内容或泄露服务端细节，一律不进入错误消息
func httpErrorHint(status int) string {
	switch {
	case status == 401:
		return "认证失败, 请检查 API 密钥"
	case status == 403:
		return "没有访问权限, 请检查账号配置"
	case status == 429:
		return "请求过于频繁, 已被限流, 请稍后再试"
	case status >= 500:
		return "AI 服务暂时不可用, 请稍后再试"
	default:
		return "请求失败"
	}
}
