package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"live-butler/app/config"
	"live-butler/app/logger"
	"live-butler/app/utils/ffmpegutil"
)

// AudioService FFmpeg 音频提取协作方，同时作为被管理服务参与生命周期
type AudioService struct {
	cfg *config.Config
	log *logger.Logger
}

// NewAudioService 创建音频提取服务
func NewAudioService(cfg *config.Config, log *logger.Logger) *AudioService {
	return &AudioService{cfg: cfg, log: log}
}

// Name 实现被管理服务接口
func (s *AudioService) Name() string {
	return "audio"
}

// Start 启动时确认 ffmpeg 可用
func (s *AudioService) Start() error {
	if err := ffmpegutil.CheckInstallation(); err != nil {
		return err
	}
	s.log.Info("音频提取服务已启动")
	return nil
}

// Stop 无持久资源需要释放
func (s *AudioService) Stop() error {
	s.log.Info("音频提取服务已停止")
	return nil
}

// 可提取音频的录播格式
var extractableExts = map[string]struct{}{
	".flv": {},
	".mp4": {},
	".mkv": {},
	".ts":  {},
}

// ProcessVideoForAudio 提取音频并删除源视频（纯音频房间默认不保留视频）。
// 不认识的扩展名返回空路径表示跳过，不算错误。
func (s *AudioService) ProcessVideoForAudio(ctx context.Context, videoPath, roomID string) (string, error) {
	if _, ok := extractableExts[strings.ToLower(filepath.Ext(videoPath))]; !ok {
		s.log.Infof("跳过音频提取（不支持的格式）: %s", videoPath)
		return "", nil
	}

	audioPath, err := ffmpegutil.ExtractAudio(ctx, videoPath)
	if err != nil {
		return "", err
	}

	if duration, derr := ffmpegutil.GetDuration(ctx, audioPath); derr == nil {
		s.log.Infof("音频提取完成: %s -> %s, 时长 %.1f 秒", videoPath, audioPath, duration)
	} else {
		s.log.Infof("音频提取完成: %s -> %s", videoPath, audioPath)
	}

	// 提取成功后删除源视频，失败只记录日志
	if err := os.Remove(videoPath); err != nil {
		s.log.Warnf("删除源视频失败: %s, 错误: %v", videoPath, err)
	}

	return audioPath, nil
}
