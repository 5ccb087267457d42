package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/logger"
	"live-butler/app/model"
	"live-butler/app/utils/bilihelper"
)

// CommentPublisher 动态评论发布能力，由 bilihelper.Client 实现
type CommentPublisher interface {
	IsConfigured() bool
	GetDynamicsSince(ctx context.Context, uid string, since time.Time) ([]bilihelper.Dynamic, error)
	UploadCommentImage(ctx context.Context, imagePath string) (*bilihelper.CommentImage, error)
	SendDynamicComment(ctx context.Context, dynamicID, content string, image *bilihelper.CommentImage) (string, error)
}

// ReplyDispatcher 执行延迟回复：读取晚安文案，找到主播最新动态并发布评论
type ReplyDispatcher struct {
	cfg  *config.Config
	log  *logger.Logger
	bili CommentPublisher
}

// NewReplyDispatcher 创建回复分发器
func NewReplyDispatcher(cfg *config.Config, log *logger.Logger, bili CommentPublisher) *ReplyDispatcher {
	return &ReplyDispatcher{cfg: cfg, log: log, bili: bili}
}

// Execute 作为 ReplyExecutor 使用
func (d *ReplyDispatcher) Execute(ctx context.Context, task *model.DelayedReplyTask) error {
	if !d.bili.IsConfigured() {
		return errs.E(errs.KindConfiguration, "B站凭证不完整，无法发布评论", nil)
	}

	uid := d.cfg.RoomOf(task.RoomID).AnchorUID
	if uid == "" {
		return errs.E(errs.KindConfiguration, fmt.Sprintf("房间 %s 未配置主播 UID", task.RoomID), nil)
	}

	data, err := os.ReadFile(task.TextPath)
	if err != nil {
		return errs.NotFound(fmt.Sprintf("晚安文案文件不存在: %s", task.TextPath))
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return errs.Validation("晚安文案内容为空")
	}

	// 找主播最近 24 小时内的最新动态作为评论目标
	dynamics, err := d.bili.GetDynamicsSince(ctx, uid, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if len(dynamics) == 0 {
		return errs.NotFound(fmt.Sprintf("主播 %s 近期没有可评论的动态", uid))
	}

	latest := dynamics[0]
	for _, dyn := range dynamics[1:] {
		if dyn.PublishTime.After(latest.PublishTime) {
			latest = dyn
		}
	}

	// 配图上传失败时降级为纯文字评论
	var image *bilihelper.CommentImage
	if task.ImagePath != "" {
		image, err = d.bili.UploadCommentImage(ctx, task.ImagePath)
		if err != nil {
			d.log.Warnf("上传评论配图失败，降级为纯文字: %s, %v", task.ImagePath, err)
			image = nil
		}
	}

	rpid, err := d.bili.SendDynamicComment(ctx, latest.ID, content, image)
	if err != nil {
		return err
	}

	d.log.Infof("晚安评论已发布: 房间=%s, 动态=%s, 评论=%s", task.RoomID, latest.ID, rpid)
	return nil
}
