package handler

import (
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/logger"
	"live-butler/app/service"

	"github.com/gin-gonic/gin"
)

// ManageHandler 管理接口，查看和控制各后台服务
type ManageHandler struct {
	config  *config.Config
	log     *logger.Logger
	manager *service.ServiceManager
	webhook *service.WebhookService
	replies *service.DelayedReplyService
	polling *service.DynamicPollingService
}

// NewManageHandler 创建管理处理器
func NewManageHandler(
	cfg *config.Config,
	log *logger.Logger,
	manager *service.ServiceManager,
	webhook *service.WebhookService,
	replies *service.DelayedReplyService,
	polling *service.DynamicPollingService,
) *ManageHandler {
	return &ManageHandler{
		config:  cfg,
		log:     log,
		manager: manager,
		webhook: webhook,
		replies: replies,
		polling: polling,
	}
}

// ListServices 列出所有服务状态
func (h *ManageHandler) ListServices(c *gin.Context) {
	respondOK(c, h.manager.GetAllServices(), "ok")
}

// GetHealth 汇总健康状态，不需要认证
func (h *ManageHandler) GetHealth(c *gin.Context) {
	respondOK(c, h.manager.GetHealthStatus(), "ok")
}

// StartService 启动指定服务
func (h *ManageHandler) StartService(c *gin.Context) {
	name := c.Param("name")
	if err := h.manager.StartService(name); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil, "服务已启动")
}

// StopService 停止指定服务
func (h *ManageHandler) StopService(c *gin.Context) {
	name := c.Param("name")
	if err := h.manager.StopService(name); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil, "服务已停止")
}

// RestartService 重启指定服务
func (h *ManageHandler) RestartService(c *gin.Context) {
	name := c.Param("name")
	if !h.manager.RestartService(name) {
		info, err := h.manager.GetServiceInfo(name)
		if err != nil {
			respondError(c, err)
			return
		}
		respondError(c, errs.E(errs.KindInternal, "重启服务失败: "+info.Error, nil))
		return
	}
	respondOK(c, nil, "服务已重启")
}

// ListTasks 列出待执行的延迟回复任务
func (h *ManageHandler) ListTasks(c *gin.Context) {
	respondOK(c, h.replies.GetTasks(), "ok")
}

// CancelTask 取消一条延迟回复任务
func (h *ManageHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		respondError(c, errs.Validation("任务 ID 不能为空"))
		return
	}
	h.replies.RemoveTask(taskID)
	respondOK(c, nil, "任务已取消")
}

// WebhookStatus 返回 webhook 服务的处理状态
func (h *ManageHandler) WebhookStatus(c *gin.Context) {
	respondOK(c, h.webhook.Status(), "ok")
}

// WebhookHistory 返回最近处理过的事件
func (h *ManageHandler) WebhookHistory(c *gin.Context) {
	respondOK(c, h.webhook.History(), "ok")
}

// ReprocessRequest 手动重新处理请求
type ReprocessRequest struct {
	VideoPath string `json:"video_path" binding:"required"`
	XMLPath   string `json:"xml_path"`
	RoomID    string `json:"room_id"`
}

// Reprocess 手动触发一次流水线处理，同步返回结果
func (h *ManageHandler) Reprocess(c *gin.Context) {
	var req ReprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validation("请求参数错误: "+err.Error()))
		return
	}

	roomID := req.RoomID
	if roomID == "" {
		roomID = service.ExtractRoomIDFromPath(req.VideoPath)
	}

	result := h.manager.ProcessVideoFile(c.Request.Context(), req.VideoPath, req.XMLPath, roomID)
	respondOK(c, result, "处理完成")
}

// ListAnchors 列出动态轮询中的主播
func (h *ManageHandler) ListAnchors(c *gin.Context) {
	respondOK(c, h.polling.GetAnchors(), "ok")
}

// AddAnchorRequest 添加主播请求
type AddAnchorRequest struct {
	UID    string `json:"uid" binding:"required"`
	RoomID string `json:"room_id"`
}

// AddAnchor 添加主播到动态轮询
func (h *ManageHandler) AddAnchor(c *gin.Context) {
	var req AddAnchorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validation("请求参数错误: "+err.Error()))
		return
	}

	if err := h.polling.AddAnchor(req.UID, service.AnchorConfig{RoomID: req.RoomID}); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil, "主播已添加")
}

// RemoveAnchor 从动态轮询移除主播
func (h *ManageHandler) RemoveAnchor(c *gin.Context) {
	if err := h.polling.RemoveAnchor(c.Param("uid")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil, "主播已移除")
}

// SetLiveStartRequest 设置开播时间请求
type SetLiveStartRequest struct {
	StartTime int64 `json:"start_time"`
}

// SetLiveStartTime 记录主播开播时间，只回复此后发布的动态
func (h *ManageHandler) SetLiveStartTime(c *gin.Context) {
	var req SetLiveStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validation("请求参数错误: "+err.Error()))
		return
	}

	t := time.Now()
	if req.StartTime > 0 {
		t = time.Unix(req.StartTime, 0)
	}

	if err := h.polling.SetLiveStartTime(c.Param("uid"), t); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil, "开播时间已记录")
}
