package contract

import "errors"

// 最小错误分类（用于上层策略判定与退出码映射）。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（例如原文/改写数量不一致）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidInput: 输入参数非法（例如 chunk_size<=0）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfig: 配置缺失或非法；在任何处理之前返回。
	ErrConfig = errors.New("config invalid")
)
