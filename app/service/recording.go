package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/logger"
)

// RecordingHandler 录播完成事件的处理器：跑完整处理流水线，
// 成功后把晚安回复排入延迟队列。各录播平台共用同一实现。
type RecordingHandler struct {
	cfg     *config.Config
	log     *logger.Logger
	manager *ServiceManager
	replies *DelayedReplyService
}

// NewRecordingHandler 创建录播事件处理器
func NewRecordingHandler(cfg *config.Config, log *logger.Logger, manager *ServiceManager, replies *DelayedReplyService) *RecordingHandler {
	return &RecordingHandler{
		cfg:     cfg,
		log:     log,
		manager: manager,
		replies: replies,
	}
}

// Handle 实现 WebhookHandler
func (h *RecordingHandler) Handle(ctx context.Context, event *WebhookEvent) error {
	result := h.manager.ProcessVideoFile(ctx, event.FilePath, event.XMLPath, event.RoomID)
	if !result.Success {
		return errs.E(errs.KindInternal, fmt.Sprintf("流水线处理失败: %s", event.FilePath), nil)
	}

	// AI 生成了晚安产物才有东西可回复
	step, ok := result.Steps[StepAIGeneration]
	if !ok || !step.Success {
		return nil
	}
	goodnight, ok := step.Output.(*GoodnightResult)
	if !ok || goodnight.TextPath == "" {
		return nil
	}
	if event.RoomID == "" {
		h.log.Warnf("事件缺少房间号，跳过晚安回复排队: %s", event.FilePath)
		return nil
	}

	taskID, err := h.replies.AddTask(event.RoomID, goodnight.TextPath, goodnight.ImagePath, 0)
	if err != nil {
		h.log.Errorf("晚安回复任务入队失败: 房间=%s, 错误: %v", event.RoomID, err)
		return nil // 排队失败不算流水线失败
	}

	h.log.Infof("晚安回复已排队: 任务=%s, 房间=%s", taskID, event.RoomID)
	return nil
}

// roomIDPattern 录播文件名中的房间号，录播姬默认目录以房间号开头
var roomIDPattern = regexp.MustCompile(`(?:^|[\\/_-])(\d{3,12})(?:[\\/_-]|$)`)

// ExtractRoomIDFromPath 从录播文件路径中猜测房间号，找不到返回空串
func ExtractRoomIDFromPath(path string) string {
	match := roomIDPattern.FindStringSubmatch(path)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// NewDynamicReplyCallback 动态轮询发现新动态时，排一条延迟评论。
// 与录播回复共用同一套延迟任务机制。
func NewDynamicReplyCallback(cfg *config.Config, log *logger.Logger, replies *DelayedReplyService) NewDynamicCallback {
	return func(uid string, item DynamicItem) {
		roomID := ""
		for id, room := range cfg.Rooms {
			if room.AnchorUID == uid {
				roomID = id
				break
			}
		}
		if roomID == "" {
			log.Debugf("UID %s 未关联任何房间，忽略新动态 %s", uid, item.ID)
			return
		}

		// 回复文案写成草稿文件，复用延迟回复的存储与重试机制
		anchor, fan := cfg.NamesFor(roomID)
		draft := fmt.Sprintf("%s发动态啦，%s已就位！", anchor, fan)
		textPath := fmt.Sprintf("data/replies/%s-%d.txt", item.ID, time.Now().Unix())
		if err := writeReplyDraft(textPath, draft); err != nil {
			log.Warnf("写入回复草稿失败: %v", err)
			return
		}

		if _, err := replies.AddTask(roomID, textPath, "", 0); err != nil {
			log.Warnf("动态回复任务入队失败: UID=%s, 动态=%s, 错误: %v", uid, item.ID, err)
		}
	}
}

// writeReplyDraft 落盘回复草稿，目录不存在时自动创建
func writeReplyDraft(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
