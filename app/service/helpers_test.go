package service

import (
	"live-butler/app/config"
	"live-butler/app/logger"
)

// 测试共用的日志器与配置
func newTestLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

func newTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "5000"},
		Recorder: config.RecorderConfig{
			StabilityTimeout:  2,
			StabilityInterval: 10,
			HistorySize:       3,
		},
		Reply: config.ReplyConfig{
			DefaultDelaySeconds: 1,
			MaxRetries:          2,
			RetryDelaySeconds:   0,
		},
		Dynamic: config.DynamicConfig{Enabled: true, IntervalSeconds: 300},
		Rooms: map[string]config.RoomConfig{
			"23058": {AudioOnly: true, AnchorUID: "672328094", AnchorName: "小可", FanName: "小伙伴"},
			"92613": {ReplyDelaySeconds: 30},
		},
	}
}
