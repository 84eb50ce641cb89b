package orchestrator

import "context"

// Result is the outcome reported by the external executor
type Result struct {
	Success      bool
	ResourceUsed uint64
	Error        string
}

// Executor performs the actual side effect of an admitted operation.
// What the call does is the surrounding application's business; the engine
// only admits, schedules, settles and accounts around it. Implementations
// must honor ctx: the orchestrator bounds every call with the configured
// execution timeout.
type Executor interface {
	Execute(ctx context.Context, target string, payload []byte, resourceLimit uint64) Result
}

// ExecutorFunc adapts a plain function to the Executor interface
type ExecutorFunc func(ctx context.Context, target string, payload []byte, resourceLimit uint64) Result

// Execute implements Executor
func (f ExecutorFunc) Execute(ctx context.Context, target string, payload []byte, resourceLimit uint64) Result {
	return f(ctx, target, payload, resourceLimit)
}
