// ============================================================================
// wfh-check Worker Pool - 訊息送出池
// ============================================================================
//
// Package: internal/worker
// 文件: worker_pool.go
// 功能: 管理送出訊息的 Worker goroutine 與任務分發
//
// 設計模式:
//   採用 Worker Pool 模式：
//   1. 固定數量的 Worker goroutine 持續運行
//   2. 通過共享的任務 channel 分發任務
//   3. 通過結果 channel 收集送出結果
//
// 生命週期:
//   1. NewPool() - 創建 Pool，初始化 channels
//   2. Start(n, m) - 啟動 n 個 Worker goroutines
//   3. Submit(task) - 非阻塞提交；佇列滿時回傳 ErrPoolFull
//   4. ReceiveResult() - 從 resultCh 讀取結果
//   5. Stop() - 關閉 taskCh，等待已排隊的訊息送完
//
// 順序:
//   單一 Worker 時訊息依提交順序送出（預設值）。
//
// ============================================================================

package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ChuLiYu/wfh-check/internal/messenger"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrPoolClosed 表示當前 Pool 已關閉，無法提交新任務
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted 表示 Pool 尚未啟動，無法提交任務
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolFull 表示任務佇列已滿，訊息被丟棄（不做背壓）
	ErrPoolFull = errors.New("worker pool queue is full")
)

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }

// Pool 代表 Worker 池
type Pool struct {
	workers  []*Worker      // 所有啟動的 Worker 實例
	taskCh   chan Task      // 任務通道
	resultCh chan Result    // 結果通道
	stopCh   chan struct{}  // 停止訊號
	wg       sync.WaitGroup // 等待所有 Worker 完成
	started  bool
	stopped  bool
	mu       sync.Mutex // 保護 started/stopped 以及 taskCh 的關閉
}

// NewPool 建立新的 Worker Pool
func NewPool(bufferSize int) *Pool {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Pool{
		workers:  make([]*Worker, 0),
		taskCh:   make(chan Task, bufferSize),
		resultCh: make(chan Result, bufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start 啟動指定數量的 Worker
func (p *Pool) Start(workerCount int, m messenger.Messenger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	if workerCount < 1 {
		return fmt.Errorf("worker count must be positive, got %d", workerCount)
	}
	if m == nil {
		return errors.New("pool needs a messenger")
	}

	for i := 0; i < workerCount; i++ {
		worker := newWorker(i, p.taskCh, p.resultCh, m)
		p.workers = append(p.workers, worker)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(worker)
	}

	p.started = true
	return nil
}

// Submit 提交任務；永不阻塞
//
// 發送在持有 mu 的情況下以 select/default 完成，Stop() 也在持有 mu 時關閉
// taskCh，因此不會向已關閉的 channel 發送。
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolClosed
	}

	select {
	case p.taskCh <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// ReceiveResult 從結果通道接收送出結果
func (p *Pool) ReceiveResult() (Result, error) {
	result, ok := <-p.resultCh
	if !ok {
		return Result{}, ErrPoolClosed
	}
	return result, nil
}

// Stop 優雅地關閉 Worker Pool
//  1. 設定 stopped 標誌並關閉 taskCh（已排隊的訊息仍會送出）
//  2. 等待所有 Worker 完成
//  3. 關閉 resultCh，讓 ReceiveResult 的呼叫者退出
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopCh)
	close(p.taskCh)
	p.mu.Unlock()

	p.wg.Wait()

	close(p.resultCh)
}

// Done 在 Stop() 被呼叫後關閉
func (p *Pool) Done() <-chan struct{} {
	return p.stopCh
}

// GetWorkerCount 返回當前 Worker 數量
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted 檢查 Pool 是否已啟動
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Pending 回傳尚未被 Worker 取走的任務數
func (p *Pool) Pending() int {
	return len(p.taskCh)
}
