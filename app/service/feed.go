package service

import (
	"context"
	"time"

	"live-butler/app/utils/bilihelper"
)

// BiliFeedAdapter 将B站客户端适配为动态轮询的数据源
type BiliFeedAdapter struct {
	client *bilihelper.Client
}

// NewBiliFeedAdapter 创建动态数据源适配器
func NewBiliFeedAdapter(client *bilihelper.Client) *BiliFeedAdapter {
	return &BiliFeedAdapter{client: client}
}

// GetDynamicsSince 实现 DynamicFeed
func (a *BiliFeedAdapter) GetDynamicsSince(ctx context.Context, uid string, since time.Time) ([]DynamicItem, error) {
	dynamics, err := a.client.GetDynamicsSince(ctx, uid, since)
	if err != nil {
		return nil, err
	}

	items := make([]DynamicItem, 0, len(dynamics))
	for _, dyn := range dynamics {
		items = append(items, DynamicItem{
			ID:          dyn.ID,
			Type:        dyn.Type,
			Content:     dyn.Content,
			PublishTime: dyn.PublishTime,
		})
	}
	return items, nil
}
