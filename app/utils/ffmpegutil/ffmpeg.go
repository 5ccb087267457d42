package ffmpegutil

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"live-butler/app/errs"
)

// CheckInstallation 检查 ffmpeg 是否可用
func CheckInstallation() error {
	if err := exec.Command("ffmpeg", "-version").Run(); err != nil {
		return errs.E(errs.KindConfiguration, "ffmpeg 未安装或不在 PATH 中", err)
	}
	return nil
}

// ExtractAudio 从录播文件中提取音频，不转码直接复制音频流。
// 输出文件与源文件同目录同名，扩展名为 .m4a。
func ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	audioPath := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".m4a"

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "copy",
		audioPath,
	)

	if output, err := cmd.CombinedOutput(); err != nil {
		return "", errs.External(fmt.Sprintf("ffmpeg 提取音频失败: %s", tail(string(output), 500)), err)
	}
	return audioPath, nil
}

// GetDuration 通过 ffprobe 获取媒体时长（秒）
func GetDuration(ctx context.Context, mediaPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, errs.External("ffprobe 获取时长失败", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, errs.External("解析 ffprobe 输出失败", err)
	}
	return duration, nil
}

// tail 截取输出尾部，避免把整段 ffmpeg 日志塞进错误信息
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
