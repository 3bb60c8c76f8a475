package jobs

import "time"

// Status は配布ジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は回覧板1件の配布ジョブの現在状態を表します。
type Record struct {
	JobID      string     `json:"jobId"`
	CircularID uint       `json:"circularId"`
	Status     Status     `json:"status"`
	Recipients int        `json:"recipients"`
	Error      *ErrorInfo `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}
