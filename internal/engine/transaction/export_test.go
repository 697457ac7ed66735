package transaction

import "go.trai.ch/compak/internal/core/domain"

// SetBeforeSwap installs a hook run ahead of every commit step.
func (e *Engine) SetBeforeSwap(fn func(domain.FileOp) error) {
	e.beforeSwap = fn
}

// RenderEnv exposes renderEnv for tests.
var RenderEnv = renderEnv
