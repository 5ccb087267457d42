package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/logger"

	"github.com/robfig/cron/v3"
)

// DynamicItem 主播动态的归一化条目
type DynamicItem struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	PublishTime time.Time `json:"publish_time"`
}

// DynamicFeed 动态数据源：按时间点增量拉取某 UID 的动态
type DynamicFeed interface {
	GetDynamicsSince(ctx context.Context, uid string, since time.Time) ([]DynamicItem, error)
}

// NewDynamicCallback 发现新动态时的回调，按发布时间升序逐条调用
type NewDynamicCallback func(uid string, item DynamicItem)

// AnchorConfig 注册主播时的附加信息
type AnchorConfig struct {
	RoomID string `json:"room_id"`
}

// AnchorPollState 单个主播的轮询状态
type AnchorPollState struct {
	UID           string     `json:"uid"`
	RoomID        string     `json:"room_id,omitempty"`
	LiveStartTime *time.Time `json:"live_start_time,omitempty"`
	LastCheckTime time.Time  `json:"last_check_time"`
}

// DynamicPollingService 周期性轮询已注册主播的动态流，
// 发现新动态时触发回调。单个主播的拉取失败不影响同轮的其他主播。
type DynamicPollingService struct {
	cfg      *config.Config
	log      *logger.Logger
	feed     DynamicFeed
	callback NewDynamicCallback

	mu      sync.Mutex
	anchors map[string]*AnchorPollState
	cron    *cron.Cron
	running bool
}

// NewDynamicPollingService 创建动态轮询服务
func NewDynamicPollingService(cfg *config.Config, log *logger.Logger, feed DynamicFeed, callback NewDynamicCallback) *DynamicPollingService {
	return &DynamicPollingService{
		cfg:      cfg,
		log:      log,
		feed:     feed,
		callback: callback,
		anchors:  make(map[string]*AnchorPollState),
	}
}

// Name 实现被管理服务接口
func (s *DynamicPollingService) Name() string {
	return "dynamic-polling"
}

// Start 启动轮询循环
func (s *DynamicPollingService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	interval := s.cfg.Dynamic.IntervalSeconds
	if interval <= 0 {
		interval = 300
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %ds", interval), s.pollAll); err != nil {
		return errs.E(errs.KindConfiguration, "注册轮询任务失败", err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.Infof("动态轮询服务已启动，间隔 %d 秒，已注册主播 %d 个", interval, len(s.anchors))
	return nil
}

// Stop 停止轮询循环并等待进行中的一轮结束
func (s *DynamicPollingService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	s.log.Info("动态轮询服务已停止")
	return nil
}

// AddAnchor 注册主播，lastCheckTime 从当前时刻开始，避免回灌历史动态
func (s *DynamicPollingService) AddAnchor(uid string, cfg AnchorConfig) error {
	if uid == "" {
		return errs.Validation("主播 UID 不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.anchors[uid]; exists {
		return errs.Validation(fmt.Sprintf("主播已注册: %s", uid))
	}
	s.anchors[uid] = &AnchorPollState{
		UID:           uid,
		RoomID:        cfg.RoomID,
		LastCheckTime: time.Now(),
	}
	s.log.Infof("已注册主播动态轮询: UID=%s, 房间=%s", uid, cfg.RoomID)
	return nil
}

// RemoveAnchor 注销主播
func (s *DynamicPollingService) RemoveAnchor(uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.anchors[uid]; !exists {
		return errs.NotFound(fmt.Sprintf("主播未注册: %s", uid))
	}
	delete(s.anchors, uid)
	s.log.Infof("已注销主播动态轮询: UID=%s", uid)
	return nil
}

// SetLiveStartTime 设置开播时间，只有晚于该时间发布的动态才算新动态
func (s *DynamicPollingService) SetLiveStartTime(uid string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.anchors[uid]
	if !exists {
		return errs.NotFound(fmt.Sprintf("主播未注册: %s", uid))
	}
	state.LiveStartTime = &t
	return nil
}

// GetAnchors 返回全部主播的轮询状态快照
func (s *DynamicPollingService) GetAnchors() []AnchorPollState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AnchorPollState, 0, len(s.anchors))
	for _, state := range s.anchors {
		out = append(out, *state)
	}
	return out
}

// pollAll 执行一轮轮询，逐个主播隔离错误
func (s *DynamicPollingService) pollAll() {
	s.mu.Lock()
	uids := make([]string, 0, len(s.anchors))
	for uid := range s.anchors {
		uids = append(uids, uid)
	}
	s.mu.Unlock()

	for _, uid := range uids {
		s.pollAnchor(uid)
	}
}

// pollAnchor 拉取单个主播的新动态并触发回调，错误只记录日志
func (s *DynamicPollingService) pollAnchor(uid string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("轮询主播动态 panic: UID=%s, panic=%v", uid, r)
		}
	}()

	s.mu.Lock()
	state, exists := s.anchors[uid]
	if !exists {
		s.mu.Unlock()
		return
	}
	since := state.LastCheckTime
	if state.LiveStartTime != nil && state.LiveStartTime.After(since) {
		since = *state.LiveStartTime
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	items, err := s.feed.GetDynamicsSince(ctx, uid, since)
	if err != nil {
		s.log.Warnf("拉取主播动态失败: UID=%s, 错误: %v", uid, err)
		return
	}

	fresh := make([]DynamicItem, 0, len(items))
	for _, item := range items {
		if item.PublishTime.After(since) {
			fresh = append(fresh, item)
		}
	}
	if len(fresh) == 0 {
		return
	}

	// 按发布时间升序触发回调
	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].PublishTime.Before(fresh[j].PublishTime)
	})
	newest := since
	for _, item := range fresh {
		s.log.Infof("发现新动态: UID=%s, 动态=%s, 发布时间=%s",
			uid, item.ID, item.PublishTime.Format("2006-01-02 15:04:05"))
		s.callback(uid, item)
		if item.PublishTime.After(newest) {
			newest = item.PublishTime
		}
	}

	// lastCheckTime 单调推进，从不回拨
	s.mu.Lock()
	if state, exists := s.anchors[uid]; exists && newest.After(state.LastCheckTime) {
		state.LastCheckTime = newest
	}
	s.mu.Unlock()
}
