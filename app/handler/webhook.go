package handler

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/logger"
	"live-butler/app/service"

	"github.com/gin-gonic/gin"
)

// WebhookHandler 接收录制工具的 webhook 回调
type WebhookHandler struct {
	config  *config.Config
	log     *logger.Logger
	webhook *service.WebhookService
}

// NewWebhookHandler 创建 webhook 处理器
func NewWebhookHandler(cfg *config.Config, log *logger.Logger, webhook *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		config:  cfg,
		log:     log,
		webhook: webhook,
	}
}

// RecorderWebhookPayload 录播姬 webhook 载荷
type RecorderWebhookPayload struct {
	EventType string    `json:"EventType"`
	EventTime time.Time `json:"EventTimestamp"`
	EventID   string    `json:"EventId"`
	EventData struct {
		RoomID       int    `json:"RoomId"`
		ShortID      int    `json:"ShortId"`
		Name         string `json:"Name"`
		Title        string `json:"Title"`
		RelativePath string `json:"RelativePath"`
		FileSize     int64  `json:"FileSize"`
		SessionID    string `json:"SessionId"`
	} `json:"EventData"`
}

// HandleRecorder 处理录播姬回调，立即应答，流水线异步执行
func (h *WebhookHandler) HandleRecorder(c *gin.Context) {
	var payload RecorderWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errs.Validation("webhook 载荷解析失败: "+err.Error()))
		return
	}

	h.log.Infof("收到录播姬事件: type=%s room=%d path=%s",
		payload.EventType, payload.EventData.RoomID, payload.EventData.RelativePath)

	if payload.EventType != "FileClosed" {
		respondOK(c, nil, "事件已忽略")
		return
	}

	filePath := h.resolvePath(payload.EventData.RelativePath)
	event := &service.WebhookEvent{
		Platform:  "bililive-recorder",
		EventType: payload.EventType,
		RoomID:    strconv.Itoa(payload.EventData.RoomID),
		FilePath:  filePath,
		XMLPath:   siblingXMLPath(filePath),
		Metadata: map[string]any{
			"session_id": payload.EventData.SessionID,
			"title":      payload.EventData.Title,
		},
		ReceivedAt: time.Now(),
	}

	go h.webhook.ProcessEvent(context.Background(), event)
	respondOK(c, nil, "事件已接收")
}

// BlrecWebhookPayload blrec webhook 载荷
type BlrecWebhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Date string `json:"date"`
	Data struct {
		RoomID int    `json:"room_id"`
		Path   string `json:"path"`
	} `json:"data"`
}

// HandleBlrec 处理 blrec 回调
func (h *WebhookHandler) HandleBlrec(c *gin.Context) {
	var payload BlrecWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, errs.Validation("webhook 载荷解析失败: "+err.Error()))
		return
	}

	h.log.Infof("收到 blrec 事件: type=%s room=%d path=%s",
		payload.Type, payload.Data.RoomID, payload.Data.Path)

	if payload.Type != "VideoFileCompletedEvent" {
		respondOK(c, nil, "事件已忽略")
		return
	}

	event := &service.WebhookEvent{
		Platform:  "blrec",
		EventType: payload.Type,
		RoomID:    strconv.Itoa(payload.Data.RoomID),
		FilePath:  payload.Data.Path,
		XMLPath:   siblingXMLPath(payload.Data.Path),
		Metadata: map[string]any{
			"event_id": payload.ID,
		},
		ReceivedAt: time.Now(),
	}

	go h.webhook.ProcessEvent(context.Background(), event)
	respondOK(c, nil, "事件已接收")
}

// resolvePath 录播姬回调中的路径是相对录制目录的，拼接第一个监听目录
func (h *WebhookHandler) resolvePath(relative string) string {
	if filepath.IsAbs(relative) {
		return relative
	}
	if len(h.config.Recorder.WatchDirs) > 0 {
		return filepath.Join(h.config.Recorder.WatchDirs[0], relative)
	}
	return relative
}

func siblingXMLPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	if ext == "" {
		return ""
	}
	return videoPath[:len(videoPath)-len(ext)] + ".xml"
}
