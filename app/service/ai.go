package service

import (
	"context"

	"live-butler/app/utils/aihelper"
)

// AIAdapter 将 AI 客户端适配为流水线的晚安生成协作方
type AIAdapter struct {
	client *aihelper.Client
}

// NewAIAdapter 创建 AI 协作方适配器
func NewAIAdapter(client *aihelper.Client) *AIAdapter {
	return &AIAdapter{client: client}
}

// IsAvailable 实现 AIGenerator
func (a *AIAdapter) IsAvailable() bool {
	return a.client.IsAvailable()
}

// GenerateGoodnight 实现 AIGenerator
func (a *AIAdapter) GenerateGoodnight(ctx context.Context, videoPath, xmlPath, roomID string) (*GoodnightResult, error) {
	result, err := a.client.GenerateGoodnight(ctx, videoPath, xmlPath, roomID)
	if err != nil {
		return nil, err
	}
	return &GoodnightResult{
		TextPath:  result.TextPath,
		ImagePath: result.ImagePath,
	}, nil
}
