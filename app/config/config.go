package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig          `mapstructure:"server"`
	Log      LogConfig             `mapstructure:"log"`
	JWT      JWTConfig             `mapstructure:"jwt"`
	Recorder RecorderConfig        `mapstructure:"recorder"`
	Bilibili BilibiliConfig        `mapstructure:"bilibili"`
	AI       AIConfig              `mapstructure:"ai"`
	Reply    ReplyConfig           `mapstructure:"reply"`
	Dynamic  DynamicConfig         `mapstructure:"dynamic"`
	Rooms    map[string]RoomConfig `mapstructure:"rooms"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"` // bcrypt 哈希
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// RecorderConfig 录播工具接入配置
type RecorderConfig struct {
	StabilityTimeout  int      `mapstructure:"stability_timeout"`  // 文件稳定等待超时（秒）
	StabilityInterval int      `mapstructure:"stability_interval"` // 文件大小采样间隔（毫秒）
	HistorySize       int      `mapstructure:"history_size"`       // 处理历史保留条数
	WatchDirs         []string `mapstructure:"watch_dirs"`         // 额外监控的录播目录
	WatchExtensions   []string `mapstructure:"watch_extensions"`   // 监控的文件扩展名
}

// BilibiliConfig B站凭证与 API 配置
type BilibiliConfig struct {
	SessData    string `mapstructure:"sessdata"`
	BiliJct     string `mapstructure:"bili_jct"`
	DedeUserID  string `mapstructure:"dedeuserid"`
	APIBase     string `mapstructure:"api_base"`
	LiveAPIBase string `mapstructure:"live_api_base"`
}

// AIConfig AI 文本/漫画生成配置
type AIConfig struct {
	Text  AIProviderConfig `mapstructure:"text"`
	Comic AIProviderConfig `mapstructure:"comic"`
	// 默认称呼，房间未单独配置时使用
	DefaultAnchorName string `mapstructure:"default_anchor_name"`
	DefaultFanName    string `mapstructure:"default_fan_name"`
	// 漫画生成不可用时本地绘制晚安卡片
	FallbackCard bool `mapstructure:"fallback_card"`
}

type AIProviderConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // 秒
}

// ReplyConfig 延迟回复配置
type ReplyConfig struct {
	DefaultDelaySeconds int `mapstructure:"default_delay_seconds"`
	MaxRetries          int `mapstructure:"max_retries"` // 总尝试次数上限，含首次触发
	RetryDelaySeconds   int `mapstructure:"retry_delay_seconds"`
}

// DynamicConfig 动态轮询配置
type DynamicConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// RoomConfig 按直播间的个性化配置，键为房间号
type RoomConfig struct {
	AudioOnly         bool   `mapstructure:"audio_only"`          // 仅保留音频的房间
	AnchorUID         string `mapstructure:"anchor_uid"`          // 主播 UID，用于动态轮询
	AnchorName        string `mapstructure:"anchor_name"`
	FanName           string `mapstructure:"fan_name"`
	ReplyDelaySeconds int    `mapstructure:"reply_delay_seconds"` // 0 表示使用全局默认
	ReferenceImage    string `mapstructure:"reference_image"`     // 漫画生成参考图
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.username", "admin")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "live-butler")

	// 录播接入默认配置
	viper.SetDefault("recorder.stability_timeout", 30)
	viper.SetDefault("recorder.stability_interval", 500)
	viper.SetDefault("recorder.history_size", 100)
	viper.SetDefault("recorder.watch_extensions", []string{".flv", ".mp4"})

	// B站 API 默认地址
	viper.SetDefault("bilibili.api_base", "https://api.bilibili.com")
	viper.SetDefault("bilibili.live_api_base", "https://api.live.bilibili.com")

	// AI 默认配置
	viper.SetDefault("ai.default_anchor_name", "主播")
	viper.SetDefault("ai.default_fan_name", "粉丝")
	viper.SetDefault("ai.fallback_card", true)
	viper.SetDefault("ai.text.timeout", 60)
	viper.SetDefault("ai.comic.timeout", 120)

	// 延迟回复默认配置
	viper.SetDefault("reply.default_delay_seconds", 600) // 下播 10 分钟后回复
	viper.SetDefault("reply.max_retries", 3)
	viper.SetDefault("reply.retry_delay_seconds", 60)

	// 动态轮询默认配置
	viper.SetDefault("dynamic.enabled", false)
	viper.SetDefault("dynamic.interval_seconds", 300)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Recorder.StabilityTimeout <= 0 {
		return fmt.Errorf("文件稳定等待超时必须大于 0")
	}
	if config.Reply.MaxRetries < 0 {
		return fmt.Errorf("回复重试次数不能为负数")
	}
	return nil
}

// RoomOf 返回指定房间的配置，未配置时返回零值
func (c *Config) RoomOf(roomID string) RoomConfig {
	if c.Rooms == nil {
		return RoomConfig{}
	}
	return c.Rooms[roomID]
}

// IsAudioOnlyRoom 判断房间是否配置为仅保留音频
func (c *Config) IsAudioOnlyRoom(roomID string) bool {
	return c.RoomOf(roomID).AudioOnly
}

// ReplyDelayFor 返回房间的回复延迟（秒），未单独配置时取全局默认
func (c *Config) ReplyDelayFor(roomID string) int {
	if d := c.RoomOf(roomID).ReplyDelaySeconds; d > 0 {
		return d
	}
	return c.Reply.DefaultDelaySeconds
}

// NamesFor 返回房间的主播/粉丝称呼
func (c *Config) NamesFor(roomID string) (anchor, fan string) {
	anchor, fan = c.AI.DefaultAnchorName, c.AI.DefaultFanName
	room := c.RoomOf(roomID)
	if room.AnchorName != "" {
		anchor = room.AnchorName
	}
	if room.FanName != "" {
		fan = room.FanName
	}
	return anchor, fan
}
