package model

import (
	"time"
)

// EventResultStatus 单条 webhook 事件的处理结果
type EventResultStatus string

const (
	EventResultProcessed EventResultStatus = "processed" // 已分发处理
	EventResultDuplicate EventResultStatus = "duplicate" // 同一文件正在处理，丢弃
	EventResultTimeout   EventResultStatus = "timeout"   // 等待文件稳定超时
	EventResultError     EventResultStatus = "error"     // 处理器返回错误
)

// WebhookRecord 入站事件处理记录，仅用于观测，不参与去重判断
type WebhookRecord struct {
	ID         uint              `json:"id" gorm:"primaryKey"`
	Platform   string            `json:"platform" gorm:"size:32;not null;index"` // bililive-recorder / blrec / filewatcher
	EventType  string            `json:"event_type" gorm:"size:64"`
	RoomID     string            `json:"room_id" gorm:"size:32;index"`
	FilePath   string            `json:"file_path"`
	Result     EventResultStatus `json:"result" gorm:"size:20;index"`
	ErrorMsg   string            `json:"error_msg" gorm:"type:text"`
	ReceivedAt time.Time         `json:"received_at" gorm:"not null;index"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TableName 指定表名
func (WebhookRecord) TableName() string {
	return "webhook_records"
}
