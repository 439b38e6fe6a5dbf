package worker

import (
	"time"
)

// Task 代表一則待送出的群組訊息
type Task struct {
	ID      string        // 任務唯一識別碼（uuid）
	ChatID  string        // 目標群組
	Text    string        // 訊息內容
	Timeout time.Duration // 單次送出的超時時間
}

// Result 代表送出結果
type Result struct {
	TaskID   string        // 任務 ID
	ChatID   string        // 目標群組
	Success  bool          // 是否送達
	Error    error         // 錯誤訊息（如果有）
	Duration time.Duration // 實際耗時
}
