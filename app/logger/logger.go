package logger

import (
	"os"
	"path/filepath"

	"live-butler/app/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 包装 zap.Logger，提供结构化与格式化两套接口
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// New 使用给定配置创建新的日志记录器实例
func New(cfg config.LogConfig) *Logger {
	core := zapcore.NewCore(buildEncoder(cfg), buildWriter(cfg), parseLevel(cfg.Level))
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// parseLevel 解析日志级别，未知级别回退到 info
func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildEncoder 根据配置构建编码器
func buildEncoder(cfg config.LogConfig) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}

	// 文本格式使用彩色级别，便于终端阅读
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// buildWriter 根据配置构建输出目标，文件输出使用 lumberjack 轮转
func buildWriter(cfg config.LogConfig) zapcore.WriteSyncer {
	if cfg.Output != "file" {
		return zapcore.AddSync(os.Stdout)
	}

	logFile := filepath.Join("data", "logs", "live-butler.log")
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		panic("创建日志目录失败: " + err.Error())
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.MaxSize,    // 兆字节
		MaxBackups: cfg.MaxBackups, // 备份数量
		MaxAge:     cfg.MaxAge,     // 天数
		Compress:   cfg.Compress,   // 压缩旧文件
	})
}

// Sugar 返回 SugaredLogger 实例，提供更灵活的日志记录
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// WithField 向日志记录器添加字段
func (l *Logger) WithField(key string, value interface{}) *zap.Logger {
	return l.Logger.With(zap.Any(key, value))
}

// WithError 向日志记录器添加错误字段
func (l *Logger) WithError(err error) *zap.Logger {
	return l.Logger.With(zap.Error(err))
}

// 便捷方法，使用 SugaredLogger 的格式化功能
func (l *Logger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}

func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

func (l *Logger) Fatalf(template string, args ...interface{}) {
	l.sugar.Fatalf(template, args...)
}

// Sync 刷新缓冲区
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
