package aihelper

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/logger"
	"live-butler/app/utils/bilihelper"

	"resty.dev/v3"
)

// CoverProvider 直播间封面来源，由 bilihelper.Client 实现
type CoverProvider interface {
	GetRoomInfo(ctx context.Context, roomID string) (*bilihelper.RoomInfo, error)
}

// Client AI 生成客户端，依次覆盖晚安文案（chat completions）
// 与晚安漫画（images generations）两个 OpenAI 兼容端点
type Client struct {
	cfg    *config.Config
	log    *logger.Logger
	covers CoverProvider
	text   *resty.Client
	comic  *resty.Client
}

// Result 一次晚安生成的产物
type Result struct {
	TextPath  string
	ImagePath string
}

// New 创建 AI 客户端，covers 可为 nil，此时漫画没有直播间封面兜底
func New(cfg *config.Config, log *logger.Logger, covers CoverProvider) *Client {
	newClient := func(p config.AIProviderConfig) *resty.Client {
		return resty.New().
			SetBaseURL(p.BaseURL).
			SetHeader("Authorization", "Bearer "+p.APIKey).
			SetHeader("Content-Type", "application/json").
			SetTimeout(time.Duration(p.Timeout) * time.Second)
	}

	return &Client{
		cfg:    cfg,
		log:    log,
		covers: covers,
		text:   newClient(cfg.AI.Text),
		comic:  newClient(cfg.AI.Comic),
	}
}

// IsAvailable 文案生成是否可用（漫画是可选的附加产物）
func (c *Client) IsAvailable() bool {
	return c.cfg.AI.Text.Enabled && c.cfg.AI.Text.APIKey != ""
}

// GenerateGoodnight 根据录播与弹幕生成晚安文案，可选生成晚安漫画。
// 产物写在录播文件旁边：<视频名>.goodnight.txt 与 <视频名>.comic.png。
func (c *Client) GenerateGoodnight(ctx context.Context, videoPath, xmlPath, roomID string) (*Result, error) {
	text, err := c.generateText(ctx, xmlPath, roomID)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	textPath := base + ".goodnight.txt"
	if err := os.WriteFile(textPath, []byte(text), 0644); err != nil {
		return nil, errs.E(errs.KindInternal, "写入晚安文案失败", err)
	}

	result := &Result{TextPath: textPath}

	// 漫画是尽力而为的附加产物，失败时回退到本地卡片或直接放弃
	imagePath := base + ".comic.png"
	if c.cfg.AI.Comic.Enabled && c.cfg.AI.Comic.APIKey != "" {
		if err := c.generateComic(ctx, text, roomID, imagePath); err != nil {
			c.log.Warnf("漫画生成失败: 房间=%s, 错误: %v", roomID, err)
		} else {
			result.ImagePath = imagePath
		}
	}
	if result.ImagePath == "" && c.cfg.AI.FallbackCard {
		if err := RenderGoodnightCard(text, imagePath); err != nil {
			c.log.Warnf("绘制晚安卡片失败: %v", err)
		} else {
			result.ImagePath = imagePath
		}
	}

	return result, nil
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// generateText 调用 chat completions 生成晚安文案
func (c *Client) generateText(ctx context.Context, xmlPath, roomID string) (string, error) {
	anchor, fan := c.cfg.NamesFor(roomID)

	highlight := ""
	if xmlPath != "" {
		if data, err := os.ReadFile(xmlPath); err == nil {
			highlight = string(data)
			// 弹幕文件可能很大，只取开头一段作为上下文
			if len(highlight) > 8000 {
				highlight = highlight[:8000]
			}
		}
	}

	prompt := fmt.Sprintf("你是%s的%s。主播刚下播，请写一段温柔的晚安评论，"+
		"50字以内，口语化，不要出现引号。", anchor, fan)
	if highlight != "" {
		prompt += "\n今天直播的弹幕片段如下，可以适当呼应内容：\n" + highlight
	}

	var result chatCompletionsResponse
	resp, err := c.text.R().
		SetContext(ctx).
		SetBody(chatCompletionsRequest{
			Model: c.cfg.AI.Text.Model,
			Messages: []chatMessage{
				{Role: "user", Content: prompt},
			},
			Temperature: 0.7,
		}).
		SetResult(&result).
		Post("/v1/chat/completions")
	if err != nil {
		return "", errs.External("文案生成请求失败", err)
	}
	if resp.StatusCode() != 200 {
		return "", errs.External(fmt.Sprintf("文案生成失败，状态码: %d", resp.StatusCode()), nil)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", errs.External("文案生成返回空内容", nil)
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

type imageGenerationsRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	N      int      `json:"n"`
	Image  []string `json:"image,omitempty"` // 参考图 base64
}

type imageGenerationsResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// generateComic 调用 images generations 生成晚安漫画并落盘
func (c *Client) generateComic(ctx context.Context, goodnightText, roomID, outPath string) error {
	anchor, _ := c.cfg.NamesFor(roomID)
	prompt := fmt.Sprintf("可爱的动漫风格四格漫画，主角是%s，主题：%s", anchor, goodnightText)

	req := imageGenerationsRequest{
		Model:  c.cfg.AI.Comic.Model,
		Prompt: prompt,
		N:      1,
	}
	if ref := c.cfg.RoomOf(roomID).ReferenceImage; ref != "" {
		if data, err := os.ReadFile(ref); err == nil {
			req.Image = []string{base64.StdEncoding.EncodeToString(data)}
		}
	}
	// 没配参考图时退回直播间封面
	if len(req.Image) == 0 && c.covers != nil && roomID != "" {
		if data, err := c.fetchRoomCover(ctx, roomID); err != nil {
			c.log.Warnf("获取直播间封面失败: 房间=%s, 错误: %v", roomID, err)
		} else if len(data) > 0 {
			req.Image = []string{base64.StdEncoding.EncodeToString(data)}
		}
	}

	var result imageGenerationsResponse
	resp, err := c.comic.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/v1/images/generations")
	if err != nil {
		return errs.External("漫画生成请求失败", err)
	}
	if resp.StatusCode() != 200 {
		return errs.External(fmt.Sprintf("漫画生成失败，状态码: %d", resp.StatusCode()), nil)
	}
	if len(result.Data) == 0 {
		return errs.External("漫画生成返回空结果", nil)
	}

	var imageData []byte
	switch {
	case result.Data[0].B64JSON != "":
		imageData, err = base64.StdEncoding.DecodeString(result.Data[0].B64JSON)
		if err != nil {
			return errs.External("解码漫画图片失败", err)
		}
	case result.Data[0].URL != "":
		resp, err := c.comic.R().SetContext(ctx).Get(result.Data[0].URL)
		if err != nil || resp.StatusCode() != 200 {
			return errs.External("下载漫画图片失败", err)
		}
		imageData = resp.Bytes()
	default:
		return errs.External("漫画生成结果缺少图片数据", nil)
	}

	if err := os.WriteFile(outPath, imageData, 0644); err != nil {
		return errs.E(errs.KindInternal, "写入漫画图片失败", err)
	}

	// 评论图片上传有尺寸限制，过大时压一遍
	return NormalizeImage(outPath)
}

// fetchRoomCover 下载直播间封面作为漫画参考图
func (c *Client) fetchRoomCover(ctx context.Context, roomID string) ([]byte, error) {
	info, err := c.covers.GetRoomInfo(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if info.UserCover == "" {
		return nil, nil
	}

	resp, err := c.comic.R().SetContext(ctx).Get(info.UserCover)
	if err != nil {
		return nil, errs.External("下载直播间封面失败", err)
	}
	if resp.StatusCode() != 200 {
		return nil, errs.External(fmt.Sprintf("下载直播间封面失败，状态码: %d", resp.StatusCode()), nil)
	}
	return resp.Bytes(), nil
}
