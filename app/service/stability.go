package service

import (
	"context"
	"os"
	"time"

	"live-butler/app/logger"
)

// StabilityChecker 通过连续采样文件大小判断文件是否已写入完成。
// 录播工具可能在操作系统刷盘前就发出"文件已写完"的通知，
// 在大小稳定前读取会拿到截断的文件。
type StabilityChecker struct {
	interval time.Duration
	log      *logger.Logger
}

// NewStabilityChecker 创建文件稳定性检查器，interval 为大小采样间隔
func NewStabilityChecker(interval time.Duration, log *logger.Logger) *StabilityChecker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &StabilityChecker{interval: interval, log: log}
}

// WaitForFileStability 等待文件大小稳定。
// 连续两次采样大小相同且非零时返回 true；超时或始终不可读返回 false。
func (c *StabilityChecker) WaitForFileStability(ctx context.Context, path string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	var lastSize int64 = -1

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			c.log.Warnf("等待文件稳定超时: %s", path)
			return false
		case <-time.After(c.interval):
			info, err := os.Stat(path)
			if err != nil {
				// 文件可能尚未出现，继续等待直到超时
				lastSize = -1
				continue
			}

			currentSize := info.Size()
			if currentSize == lastSize && currentSize > 0 {
				c.log.Debugf("文件大小已稳定: %s (%d 字节)", path, currentSize)
				return true
			}
			lastSize = currentSize
		}
	}
}

// CheckFileExists 检查文件是否存在且不是目录
func (c *StabilityChecker) CheckFileExists(path string) bool {
	return fileExists(path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GetFileSize 获取文件大小
func (c *StabilityChecker) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
