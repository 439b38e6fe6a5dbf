// ============================================================================
// wfh-check Worker - Outbound Message Sender
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Work unit that delivers outbound group messages, each Worker runs
//           in an independent goroutine
//
// How it works:
//   1. Receive task from taskCh (blocking wait)
//   2. Call Messenger.Send with a per-task timeout context
//   3. Send result to resultCh
//   4. Repeat until taskCh is closed
//
// Failure semantics:
//   Delivery is fire-and-forget. A failed send is reported once through
//   resultCh and never retried here.
//
// ============================================================================

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/messenger"
)

// Worker represents a delivery unit
type Worker struct {
	id        int                 // Worker identifier, used for logging
	taskCh    <-chan Task         // Task channel (read-only)
	resultCh  chan<- Result       // Result channel (write-only)
	messenger messenger.Messenger // Outbound transport
}

// newWorker creates a new Worker instance
func newWorker(id int, taskCh <-chan Task, resultCh chan<- Result, m messenger.Messenger) *Worker {
	return &Worker{
		id:        id,
		taskCh:    taskCh,
		resultCh:  resultCh,
		messenger: m,
	}
}

// Run is the main loop of Worker
func (w *Worker) Run() {
	for task := range w.taskCh {
		result := w.execute(task)

		select {
		case w.resultCh <- result:
		default:
			// result channel full: the outcome is still visible in the log
			slog.Warn("worker: dropping delivery result",
				"worker", w.id, "task", task.ID, "success", result.Success, "error", result.Error)
		}
	}
}

// execute sends one message and never lets a panic in the transport kill the worker
func (w *Worker) execute(task Task) (result Result) {
	start := time.Now()
	result = Result{TaskID: task.ID, ChatID: task.ChatID}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = &messenger.DeliveryError{ChatID: task.ChatID, TaskID: task.ID, Err: panicError{r}}
		}
		result.Duration = time.Since(start)
	}()

	if err := w.messenger.Send(ctx, task.ChatID, task.Text); err != nil {
		result.Error = &messenger.DeliveryError{ChatID: task.ChatID, TaskID: task.ID, Err: err}
		return result
	}
	result.Success = true
	return result
}
