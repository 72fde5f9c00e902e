package core

import (
	"log"
	"sync"
)

// ProgressCallback receives worker lifecycle events. Implementations must
// be safe for concurrent use; workers report from their own goroutines.
type ProgressCallback interface {
	OnWorkerStart(workerID, objective string)
	OnWorkerToolUse(workerID, tool, details string)
	OnWorkerComplete(workerID string)
	OnWorkerError(workerID, errMsg string)
}

// NoOpProgress discards all events.
type NoOpProgress struct{}

func (NoOpProgress) OnWorkerStart(workerID, objective string)       {}
func (NoOpProgress) OnWorkerToolUse(workerID, tool, details string) {}
func (NoOpProgress) OnWorkerComplete(workerID string)               {}
func (NoOpProgress) OnWorkerError(workerID, errMsg string)          {}

// LogProgress writes events to a standard logger. A mutex keeps interleaved
// worker output readable.
type LogProgress struct {
	mu     sync.Mutex
	logger *log.Logger
}

func NewLogProgress() *LogProgress {
	return &LogProgress{logger: log.New(log.Writer(), "[PROGRESS] ", log.LstdFlags)}
}

func (p *LogProgress) OnWorkerStart(workerID, objective string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Printf("%s started: %.120s", workerID, objective)
}

func (p *LogProgress) OnWorkerToolUse(workerID, tool, details string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Printf("%s [%s] %.120s", workerID, tool, details)
}

func (p *LogProgress) OnWorkerComplete(workerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Printf("%s completed", workerID)
}

func (p *LogProgress) OnWorkerError(workerID, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Printf("%s failed: %s", workerID, errMsg)
}
