// Package metrics provides a small instrumentation surface with a no-op
// default and a Prometheus-backed implementation.
package metrics

import (
	"sync"
	"time"
)

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	IncDBOpTotal(op string, success bool)
	ObserveDBOpSeconds(op string, success bool, seconds float64)
	IncLLMCallTotal(provider string, success bool)
	ObserveLLMCallSeconds(provider string, success bool, seconds float64)
	IncMemoryContextDegraded()
}

type noopRecorder struct{}

func (n *noopRecorder) IncDBOpTotal(string, bool)                   {}
func (n *noopRecorder) ObserveDBOpSeconds(string, bool, float64)    {}
func (n *noopRecorder) IncLLMCallTotal(string, bool)                {}
func (n *noopRecorder) ObserveLLMCallSeconds(string, bool, float64) {}
func (n *noopRecorder) IncMemoryContextDegraded()                   {}

var (
	recMu    sync.RWMutex
	recorder Recorder = &noopRecorder{}
)

// Default returns the current recorder.
func Default() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

// SetRecorder swaps the global recorder implementation.
func SetRecorder(r Recorder) {
	recMu.Lock()
	defer recMu.Unlock()
	if r == nil {
		r = &noopRecorder{}
	}
	recorder = r
}

// TimeOp times a DB operation.
func TimeOp(op string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncDBOpTotal(op, success)
		Default().ObserveDBOpSeconds(op, success, dur)
	}
}

// TimeLLM times a chat-completion call.
func TimeLLM(provider string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncLLMCallTotal(provider, success)
		Default().ObserveLLMCallSeconds(provider, success, dur)
	}
}
