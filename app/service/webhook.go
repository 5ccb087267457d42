package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/logger"
	"live-butler/app/model"

	"gorm.io/gorm"
)

// WebhookEvent 归一化后的入站事件
type WebhookEvent struct {
	Platform   string         `json:"platform"`   // bililive-recorder / blrec / filewatcher
	EventType  string         `json:"event_type"` // 平台原始事件类型
	RoomID     string         `json:"room_id"`
	FilePath   string         `json:"file_path"` // 录制文件路径，可为空（非文件事件）
	XMLPath    string         `json:"xml_path"`  // 弹幕文件路径，可为空
	Metadata   map[string]any `json:"metadata,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// EventResult 单条事件的处理结果
type EventResult struct {
	Status  model.EventResultStatus `json:"status"`
	Message string                  `json:"message"`
	Err     error                   `json:"-"`
}

// WebhookHandler 按平台注册的事件处理器
type WebhookHandler interface {
	Handle(ctx context.Context, event *WebhookEvent) error
}

// WebhookStatus 服务状态快照
type WebhookStatus struct {
	Running      bool   `json:"running"`
	Port         string `json:"port"`
	HandlerCount int    `json:"handler_count"`
	InFlight     int    `json:"in_flight"`
	HistorySize  int    `json:"history_size"`
}

// WebhookService 接收录播工具的事件通知，执行文件稳定等待与去重后
// 分发给对应平台的处理器，并保留有界的处理历史。
type WebhookService struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *gorm.DB // 可为 nil，此时历史仅保留在内存中
	checker *StabilityChecker
	guard   *DuplicateGuard

	mu          sync.RWMutex
	handlers    map[string]WebhookHandler
	history     []model.WebhookRecord
	historySize int
	running     bool
}

// NewWebhookService 创建 webhook 事件服务
func NewWebhookService(cfg *config.Config, log *logger.Logger, db *gorm.DB) *WebhookService {
	historySize := cfg.Recorder.HistorySize
	if historySize <= 0 {
		historySize = 100
	}
	return &WebhookService{
		cfg:         cfg,
		log:         log,
		db:          db,
		checker:     NewStabilityChecker(time.Duration(cfg.Recorder.StabilityInterval)*time.Millisecond, log),
		guard:       NewDuplicateGuard(),
		handlers:    make(map[string]WebhookHandler),
		historySize: historySize,
	}
}

// Name 实现被管理服务接口
func (s *WebhookService) Name() string {
	return "webhook"
}

// Start 开始接收事件
func (s *WebhookService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = true
	s.log.Infof("webhook 事件服务已启动，已注册 %d 个平台处理器", len(s.handlers))
	return nil
}

// Stop 停止接收事件
func (s *WebhookService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.log.Info("webhook 事件服务已停止")
	return nil
}

// RegisterHandler 注册平台处理器，重复注册会覆盖
func (s *WebhookService) RegisterHandler(platform string, handler WebhookHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[platform] = handler
}

// Checker 返回内部的文件稳定性检查器
func (s *WebhookService) Checker() *StabilityChecker {
	return s.checker
}

// ProcessEvent 处理一条归一化事件：占用去重槽位 → 等待文件稳定 → 分发处理器。
// 无论结果如何都会写入处理历史；槽位在所有退出路径上都会释放。
func (s *WebhookService) ProcessEvent(ctx context.Context, event *WebhookEvent) *EventResult {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}

	s.mu.RLock()
	running := s.running
	handler, hasHandler := s.handlers[event.Platform]
	s.mu.RUnlock()

	if !running {
		result := &EventResult{
			Status:  model.EventResultError,
			Message: "webhook 服务未运行",
			Err:     errs.E(errs.KindInternal, "webhook 服务未运行", nil),
		}
		s.record(event, result)
		return result
	}

	if !hasHandler {
		result := &EventResult{
			Status:  model.EventResultError,
			Message: fmt.Sprintf("平台 %s 未注册处理器", event.Platform),
			Err:     errs.NotFound(fmt.Sprintf("平台 %s 未注册处理器", event.Platform)),
		}
		s.record(event, result)
		return result
	}

	// 非文件事件直接分发
	if event.FilePath == "" {
		result := s.dispatch(ctx, handler, event)
		s.record(event, result)
		return result
	}

	// 先占用去重槽位再等待稳定：同一文件的第二条通知会被立即拒绝，
	// 而不是陪着第一条一起等待。
	if !s.guard.TryAcquire(event.FilePath) {
		s.log.Infof("文件正在处理中，丢弃重复通知: %s", event.FilePath)
		result := &EventResult{
			Status:  model.EventResultDuplicate,
			Message: "文件正在处理中",
		}
		s.record(event, result)
		return result
	}
	defer s.guard.Release(event.FilePath)

	timeout := time.Duration(s.cfg.Recorder.StabilityTimeout) * time.Second
	if !s.checker.WaitForFileStability(ctx, event.FilePath, timeout) {
		result := &EventResult{
			Status:  model.EventResultTimeout,
			Message: "等待文件稳定超时",
			Err:     errs.Timeout("等待文件稳定超时", nil),
		}
		s.record(event, result)
		return result
	}

	result := s.dispatch(ctx, handler, event)
	s.record(event, result)
	return result
}

// dispatch 调用处理器，panic 与错误都转为事件结果，不影响服务本身
func (s *WebhookService) dispatch(ctx context.Context, handler WebhookHandler, event *WebhookEvent) (result *EventResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("处理器 panic: platform=%s, file=%s, panic=%v", event.Platform, event.FilePath, r)
			result = &EventResult{
				Status:  model.EventResultError,
				Message: fmt.Sprintf("处理器 panic: %v", r),
				Err:     errs.E(errs.KindInternal, "处理器 panic", fmt.Errorf("%v", r)),
			}
		}
	}()

	if err := handler.Handle(ctx, event); err != nil {
		s.log.Errorf("处理器执行失败: platform=%s, file=%s, 错误: %v", event.Platform, event.FilePath, err)
		return &EventResult{
			Status:  model.EventResultError,
			Message: err.Error(),
			Err:     err,
		}
	}

	return &EventResult{
		Status:  model.EventResultProcessed,
		Message: "处理完成",
	}
}

// record 追加有界处理历史，存在数据库连接时同步落库
func (s *WebhookService) record(event *WebhookEvent, result *EventResult) {
	rec := model.WebhookRecord{
		Platform:   event.Platform,
		EventType:  event.EventType,
		RoomID:     event.RoomID,
		FilePath:   event.FilePath,
		Result:     result.Status,
		ErrorMsg:   result.Message,
		ReceivedAt: event.ReceivedAt,
	}
	if result.Status == model.EventResultProcessed {
		rec.ErrorMsg = ""
	}

	s.mu.Lock()
	s.history = append(s.history, rec)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Create(&rec).Error; err != nil {
			s.log.Warnf("写入事件处理记录失败: %v", err)
		}
	}
}

// History 返回处理历史快照，新事件在后
func (s *WebhookService) History() []model.WebhookRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.WebhookRecord, len(s.history))
	copy(out, s.history)
	return out
}

// InFlightFiles 返回当前处理中的文件列表
func (s *WebhookService) InFlightFiles() []string {
	return s.guard.InFlight()
}

// Status 返回服务状态快照
func (s *WebhookService) Status() WebhookStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return WebhookStatus{
		Running:      s.running,
		Port:         s.cfg.Server.Port,
		HandlerCount: len(s.handlers),
		InFlight:     s.guard.Count(),
		HistorySize:  len(s.history),
	}
}
