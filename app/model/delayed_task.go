package model

import (
	"time"
)

// TaskStatus 延迟回复任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 等待触发
	TaskStatusCompleted TaskStatus = "completed" // 回复成功
	TaskStatusFailed    TaskStatus = "failed"    // 超过重试次数
	TaskStatusCancelled TaskStatus = "cancelled" // 触发前被取消
)

// DelayedReplyTask 延迟回复任务模型
type DelayedReplyTask struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	TaskID        string     `json:"task_id" gorm:"not null;uniqueIndex"` // 对外暴露的任务标识
	RoomID        string     `json:"room_id" gorm:"not null;index"`
	TextPath      string     `json:"text_path" gorm:"not null"` // 晚安文案文件路径
	ImagePath     string     `json:"image_path"`                // 漫画图片路径，可为空
	ScheduledAt   time.Time  `json:"scheduled_at" gorm:"not null;index"`
	Status        TaskStatus `json:"status" gorm:"size:20;default:'pending';index"`
	RetryCount    int        `json:"retry_count" gorm:"default:0"`
	MaxRetryCount int        `json:"max_retry_count" gorm:"default:3"`
	LastError     string     `json:"last_error" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// TableName 指定表名
func (DelayedReplyTask) TableName() string {
	return "delayed_reply_tasks"
}

// CanRetry 检查是否可以重试
func (t *DelayedReplyTask) CanRetry() bool {
	return t.RetryCount < t.MaxRetryCount && t.Status == TaskStatusPending
}

// SetError 记录一次失败，达到总尝试次数上限（含首次）时置为失败状态
func (t *DelayedReplyTask) SetError(err error) {
	t.RetryCount++
	t.LastError = err.Error()
	if t.RetryCount >= t.MaxRetryCount {
		t.Status = TaskStatusFailed
	}
}

// SetCompleted 标记任务完成
func (t *DelayedReplyTask) SetCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.LastError = ""
}
