package pathguard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathRejected 路径校验失败（不存在、无法解析或不在允许的目录内）
var ErrPathRejected = errors.New("路径校验失败")

// Policy 路径策略：一组允许的根目录
// 校验时先解析符号链接得到规范路径，再做包含检查
// 注意：不能用未规范化的前缀比较，否则符号链接可以逃逸出允许目录
type Policy struct {
	name  string
	roots []string
}

// NewPolicy 创建路径策略
// roots 在每次校验时解析，允许目录可以在策略创建之后才出现
func NewPolicy(name string, roots ...string) *Policy {
	return &Policy{
		name:  name,
		roots: roots,
	}
}

// Name 返回策略名称
func (p *Policy) Name() string {
	return p.name
}

// Validate 校验候选路径
// 成功时返回解析后的规范绝对路径，失败时返回 ErrPathRejected
func (p *Policy) Validate(candidate string) (string, error) {
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: 无法解析路径 %s: %v", ErrPathRejected, candidate, err)
	}

	// EvalSymlinks 同时完成存在性检查和符号链接解析
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: 路径不存在或无法规范化 %s: %v", ErrPathRejected, candidate, err)
	}

	for _, root := range p.roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootCanonical, err := filepath.EvalSymlinks(rootAbs)
		if err != nil {
			// 允许目录本身不存在时跳过该根
			continue
		}
		if isDescendant(rootCanonical, canonical) {
			return canonical, nil
		}
	}

	return "", fmt.Errorf("%w: 路径不在策略 %s 允许的目录内: %s", ErrPathRejected, p.name, candidate)
}

// isDescendant 判断 path 是否位于 root 之下（规范路径比较）
func isDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
