package bilihelper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"

	"github.com/patrickmn/go-cache"
	"resty.dev/v3"
)

// 评论资源类型：17 = 动态
const commentTypeDynamic = "17"

// Client B站 API 客户端，覆盖动态拉取、动态评论与直播间信息
type Client struct {
	cfg       *config.BilibiliConfig
	api       *resty.Client
	liveAPI   *resty.Client
	roomCache *cache.Cache
}

// New 创建B站客户端
func New(cfg *config.BilibiliConfig) *Client {
	cookie := fmt.Sprintf("SESSDATA=%s; bili_jct=%s; DedeUserID=%s",
		cfg.SessData, cfg.BiliJct, cfg.DedeUserID)

	api := resty.New().
		SetBaseURL(cfg.APIBase).
		SetHeader("Cookie", cookie).
		SetHeader("Referer", "https://www.bilibili.com").
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	liveAPI := resty.New().
		SetBaseURL(cfg.LiveAPIBase).
		SetHeader("Cookie", cookie).
		SetHeader("Referer", "https://live.bilibili.com")

	return &Client{
		cfg:       cfg,
		api:       api,
		liveAPI:   liveAPI,
		roomCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// IsConfigured 凭证是否完整
func (c *Client) IsConfigured() bool {
	return c.cfg.SessData != "" && c.cfg.BiliJct != "" && c.cfg.DedeUserID != ""
}

// apiEnvelope B站接口通用响应壳
type apiEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Dynamic 主播动态条目
type Dynamic struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	PublishTime time.Time `json:"publish_time"`
}

type dynamicFeedResponse struct {
	apiEnvelope
	Data struct {
		Items []struct {
			IDStr   string `json:"id_str"`
			Type    string `json:"type"`
			Modules struct {
				ModuleAuthor struct {
					PubTs int64 `json:"pub_ts"`
				} `json:"module_author"`
				ModuleDynamic struct {
					Desc *struct {
						Text string `json:"text"`
					} `json:"desc"`
				} `json:"module_dynamic"`
			} `json:"modules"`
		} `json:"items"`
	} `json:"data"`
}

// GetDynamicsSince 拉取指定 UID 晚于 since 发布的动态
func (c *Client) GetDynamicsSince(ctx context.Context, uid string, since time.Time) ([]Dynamic, error) {
	var result dynamicFeedResponse

	resp, err := c.api.R().
		SetContext(ctx).
		SetQueryParam("host_mid", uid).
		SetResult(&result).
		Get("/x/polymer/web-dynamic/v1/feed/space")
	if err != nil {
		return nil, errs.External("请求动态列表失败", err)
	}
	if resp.StatusCode() != 200 {
		return nil, errs.External(fmt.Sprintf("请求动态列表失败，状态码: %d", resp.StatusCode()), nil)
	}
	if result.Code != 0 {
		return nil, errs.External(fmt.Sprintf("动态接口返回错误: code=%d, message=%s", result.Code, result.Message), nil)
	}

	dynamics := make([]Dynamic, 0, len(result.Data.Items))
	for _, item := range result.Data.Items {
		publishTime := time.Unix(item.Modules.ModuleAuthor.PubTs, 0)
		if !publishTime.After(since) {
			continue
		}
		content := ""
		if item.Modules.ModuleDynamic.Desc != nil {
			content = item.Modules.ModuleDynamic.Desc.Text
		}
		// 限制长度，和动态摘要保持一致
		if len(content) > 200 {
			content = content[:200]
		}
		dynamics = append(dynamics, Dynamic{
			ID:          item.IDStr,
			Type:        item.Type,
			Content:     content,
			PublishTime: publishTime,
		})
	}
	return dynamics, nil
}

// CommentImage 已上传到B站图床的评论配图
type CommentImage struct {
	URL    string
	Width  int
	Height int
}

type bfsUploadResponse struct {
	apiEnvelope
	Data struct {
		ImageURL    string `json:"image_url"`
		ImageWidth  int    `json:"image_width"`
		ImageHeight int    `json:"image_height"`
	} `json:"data"`
}

// UploadCommentImage 把本地图片上传到B站图床，供评论引用
func (c *Client) UploadCommentImage(ctx context.Context, imagePath string) (*CommentImage, error) {
	if imagePath == "" {
		return nil, errs.Validation("图片路径不能为空")
	}

	var result bfsUploadResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetFile("file_up", imagePath).
		SetFormData(map[string]string{
			"category": "daily",
			"csrf":     c.cfg.BiliJct,
		}).
		SetResult(&result).
		Post("/x/dynamic/feed/draw/upload_bfs")
	if err != nil {
		return nil, errs.External("上传评论图片失败", err)
	}
	if resp.StatusCode() != 200 {
		return nil, errs.External(fmt.Sprintf("上传评论图片失败，状态码: %d", resp.StatusCode()), nil)
	}
	if result.Code != 0 {
		return nil, errs.External(fmt.Sprintf("图床接口返回错误: code=%d, message=%s", result.Code, result.Message), nil)
	}

	return &CommentImage{
		URL:    result.Data.ImageURL,
		Width:  result.Data.ImageWidth,
		Height: result.Data.ImageHeight,
	}, nil
}

type replyAddResponse struct {
	apiEnvelope
	Data struct {
		Rpid int64 `json:"rpid"`
	} `json:"data"`
}

type commentPicture struct {
	ImgSrc    string `json:"img_src"`
	ImgWidth  int    `json:"img_width"`
	ImgHeight int    `json:"img_height"`
	ImgSize   int    `json:"img_size"`
}

// SendDynamicComment 在指定动态下发布评论，image 非空时附带配图，返回评论 rpid
func (c *Client) SendDynamicComment(ctx context.Context, dynamicID, content string, image *CommentImage) (string, error) {
	if dynamicID == "" || content == "" {
		return "", errs.Validation("动态 ID 和评论内容不能为空")
	}

	form := map[string]string{
		"oid":     dynamicID,
		"type":    commentTypeDynamic,
		"message": content,
		"csrf":    c.cfg.BiliJct,
	}
	if image != nil {
		pictures, err := json.Marshal([]commentPicture{{
			ImgSrc:    image.URL,
			ImgWidth:  image.Width,
			ImgHeight: image.Height,
		}})
		if err != nil {
			return "", errs.E(errs.KindInternal, "序列化评论配图失败", err)
		}
		form["pictures"] = string(pictures)
	}

	var result replyAddResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		Post("/x/v2/reply/add")
	if err != nil {
		return "", errs.External("发布评论请求失败", err)
	}
	if resp.StatusCode() != 200 {
		return "", errs.External(fmt.Sprintf("发布评论失败，状态码: %d", resp.StatusCode()), nil)
	}
	if result.Code != 0 {
		return "", errs.External(fmt.Sprintf("评论接口返回错误: code=%d, message=%s", result.Code, result.Message), nil)
	}

	return fmt.Sprintf("%d", result.Data.Rpid), nil
}

// RoomInfo 直播间信息
type RoomInfo struct {
	RoomID     int64  `json:"room_id"`
	UID        int64  `json:"uid"`
	Title      string `json:"title"`
	LiveStatus int    `json:"live_status"` // 0 未开播 1 直播中 2 轮播
	UserCover  string `json:"user_cover"`  // 封面，可作为漫画参考图
}

type roomInfoResponse struct {
	apiEnvelope
	Data RoomInfo `json:"data"`
}

// GetRoomInfo 获取直播间信息，结果缓存 5 分钟
func (c *Client) GetRoomInfo(ctx context.Context, roomID string) (*RoomInfo, error) {
	if cached, found := c.roomCache.Get(roomID); found {
		return cached.(*RoomInfo), nil
	}

	var result roomInfoResponse
	resp, err := c.liveAPI.R().
		SetContext(ctx).
		SetQueryParam("room_id", roomID).
		SetResult(&result).
		Get("/room/v1/Room/get_info")
	if err != nil {
		return nil, errs.External("请求直播间信息失败", err)
	}
	if resp.StatusCode() != 200 {
		return nil, errs.External(fmt.Sprintf("请求直播间信息失败，状态码: %d", resp.StatusCode()), nil)
	}
	if result.Code != 0 {
		return nil, errs.External(fmt.Sprintf("直播间接口返回错误: code=%d, message=%s", result.Code, result.Message), nil)
	}

	info := result.Data
	c.roomCache.Set(roomID, &info, cache.DefaultExpiration)
	return &info, nil
}
