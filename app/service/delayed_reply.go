package service

import (
	"context"
	"sync"
	"time"

	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/logger"
	"live-butler/app/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReplyExecutor 到点执行的回复动作
type ReplyExecutor func(ctx context.Context, task *model.DelayedReplyTask) error

// pendingTask 内存中的待触发任务，timer 与 fired 受服务锁保护
type pendingTask struct {
	task  *model.DelayedReplyTask
	timer *time.Timer
	fired bool
}

// DelayedReplyService 延迟回复任务队列。任务入队后延迟指定时间触发回复动作，
// 触发前可取消；失败按上限重试。
type DelayedReplyService struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *gorm.DB // 可为 nil，此时任务不持久化
	executor ReplyExecutor

	mu      sync.Mutex
	tasks   map[string]*pendingTask
	running bool
	wg      sync.WaitGroup
}

// NewDelayedReplyService 创建延迟回复服务
func NewDelayedReplyService(cfg *config.Config, log *logger.Logger, db *gorm.DB, executor ReplyExecutor) *DelayedReplyService {
	return &DelayedReplyService{
		cfg:      cfg,
		log:      log,
		db:       db,
		executor: executor,
		tasks:    make(map[string]*pendingTask),
	}
}

// Name 实现被管理服务接口
func (s *DelayedReplyService) Name() string {
	return "delayed-reply"
}

// Start 启动服务并为所有待触发任务布置定时器。
// 存在数据库时会恢复上次进程遗留的待触发任务，按剩余时间重新布置。
func (s *DelayedReplyService) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true

	// 进程内已入队但尚未布置定时器的任务
	for id, pending := range s.tasks {
		if pending.timer == nil {
			s.armLocked(id, pending)
		}
	}
	s.mu.Unlock()

	if s.db != nil {
		s.restoreFromDB()
	}

	s.log.Infof("延迟回复服务已启动，待触发任务 %d 个", s.taskCount())
	return nil
}

// Stop 停止服务，取消全部定时器并等待正在执行的回复完成
func (s *DelayedReplyService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	for _, pending := range s.tasks {
		if pending.timer != nil {
			pending.timer.Stop()
			pending.timer = nil
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("延迟回复服务已停止")
	return nil
}

// AddTask 入队延迟回复任务并立即返回任务 ID，不等待延迟。
// delay 为零时使用房间配置的默认延迟。
func (s *DelayedReplyService) AddTask(roomID, textPath, imagePath string, delay time.Duration) (string, error) {
	if roomID == "" {
		return "", errs.Validation("房间号不能为空")
	}
	if textPath == "" {
		return "", errs.Validation("晚安文案路径不能为空")
	}
	if delay <= 0 {
		delay = time.Duration(s.cfg.ReplyDelayFor(roomID)) * time.Second
	}

	task := &model.DelayedReplyTask{
		TaskID:        uuid.NewString(),
		RoomID:        roomID,
		TextPath:      textPath,
		ImagePath:     imagePath,
		ScheduledAt:   time.Now().Add(delay),
		Status:        model.TaskStatusPending,
		MaxRetryCount: s.cfg.Reply.MaxRetries,
	}

	if s.db != nil {
		if err := s.db.Create(task).Error; err != nil {
			return "", errs.E(errs.KindInternal, "保存延迟回复任务失败", err)
		}
	}

	s.mu.Lock()
	pending := &pendingTask{task: task}
	s.tasks[task.TaskID] = pending
	if s.running {
		s.armLocked(task.TaskID, pending)
	}
	s.mu.Unlock()

	s.log.Infof("延迟回复任务已入队: 任务=%s, 房间=%s, 触发时间=%s",
		task.TaskID, roomID, task.ScheduledAt.Format("2006-01-02 15:04:05"))
	return task.TaskID, nil
}

// RemoveTask 取消待触发任务。未知 ID 或已触发的任务视为无操作，不报错。
func (s *DelayedReplyService) RemoveTask(taskID string) {
	s.mu.Lock()
	pending, exists := s.tasks[taskID]
	if !exists || pending.fired {
		// 已触发的任务由触发流程收尾，这里不能再动
		s.mu.Unlock()
		return
	}
	if pending.timer != nil {
		pending.timer.Stop()
	}
	delete(s.tasks, taskID)
	s.mu.Unlock()

	s.persistStatus(pending.task, model.TaskStatusCancelled)
	s.log.Infof("延迟回复任务已取消: %s", taskID)
}

// GetTasks 返回待触发任务快照
func (s *DelayedReplyService) GetTasks() []model.DelayedReplyTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DelayedReplyTask, 0, len(s.tasks))
	for _, pending := range s.tasks {
		out = append(out, *pending.task)
	}
	return out
}

// armLocked 为任务布置一次性定时器，调用方需持有锁
func (s *DelayedReplyService) armLocked(taskID string, pending *pendingTask) {
	delay := time.Until(pending.task.ScheduledAt)
	if delay < 0 {
		delay = 0
	}
	pending.timer = time.AfterFunc(delay, func() {
		s.fire(taskID)
	})
}

// fire 定时器到点后的触发流程。fired 标志与取消在同一把锁下判定，
// 保证取消与触发竞争时回复不会重复执行。
func (s *DelayedReplyService) fire(taskID string) {
	s.mu.Lock()
	pending, exists := s.tasks[taskID]
	if !exists || pending.fired || !s.running {
		s.mu.Unlock()
		return
	}
	pending.fired = true
	task := pending.task
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	s.log.Infof("触发延迟回复: 任务=%s, 房间=%s", taskID, task.RoomID)
	err := s.executor(context.Background(), task)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.tasks, taskID)
		task.SetCompleted()
		s.persistAsync(task)
		s.log.Infof("延迟回复成功: 任务=%s, 房间=%s", taskID, task.RoomID)
		return
	}

	task.SetError(err)
	if task.Status == model.TaskStatusFailed {
		delete(s.tasks, taskID)
		s.persistAsync(task)
		s.log.Errorf("延迟回复失败（超过重试次数）: 任务=%s, 房间=%s, 重试=%d, 最终错误: %v",
			taskID, task.RoomID, task.RetryCount, err)
		return
	}

	// 重试：按固定间隔重新布置定时器
	retryDelay := time.Duration(s.cfg.Reply.RetryDelaySeconds) * time.Second
	task.ScheduledAt = time.Now().Add(retryDelay)
	pending.fired = false
	if s.running {
		s.armLocked(taskID, pending)
	}
	s.persistAsync(task)
	s.log.Warnf("延迟回复失败，将重试: 任务=%s, 房间=%s, 重试=%d/%d, 错误: %v",
		taskID, task.RoomID, task.RetryCount, task.MaxRetryCount, err)
}

// restoreFromDB 恢复上次进程遗留的待触发任务
func (s *DelayedReplyService) restoreFromDB() {
	var rows []model.DelayedReplyTask
	if err := s.db.Where("status = ?", model.TaskStatusPending).Find(&rows).Error; err != nil {
		s.log.Warnf("恢复延迟回复任务失败: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for i := range rows {
		task := rows[i]
		if _, exists := s.tasks[task.TaskID]; exists {
			continue
		}
		// 已过期的任务给 5 秒缓冲尽快触发，而不是直接丢弃
		if time.Until(task.ScheduledAt) < 5*time.Second {
			task.ScheduledAt = time.Now().Add(5 * time.Second)
		}
		pending := &pendingTask{task: &task}
		s.tasks[task.TaskID] = pending
		s.armLocked(task.TaskID, pending)
		restored++
	}

	if restored > 0 {
		s.log.Infof("从数据库恢复了 %d 个待触发任务", restored)
	}
}

// persistAsync 在锁内拷贝任务快照后异步落库。
// 下一次触发可能在落库完成前就修改任务，落库协程只能读快照。
func (s *DelayedReplyService) persistAsync(task *model.DelayedReplyTask) {
	if s.db == nil {
		return
	}
	snapshot := *task
	go s.persistTask(&snapshot)
}

// persistTask 将任务完整状态落库
func (s *DelayedReplyService) persistTask(task *model.DelayedReplyTask) {
	if s.db == nil {
		return
	}
	if err := s.db.Model(&model.DelayedReplyTask{}).
		Where("task_id = ?", task.TaskID).
		Updates(map[string]any{
			"status":       task.Status,
			"retry_count":  task.RetryCount,
			"last_error":   task.LastError,
			"scheduled_at": task.ScheduledAt,
			"completed_at": task.CompletedAt,
		}).Error; err != nil {
		s.log.Warnf("更新任务状态失败: 任务=%s, 错误: %v", task.TaskID, err)
	}
}

// persistStatus 仅更新任务状态
func (s *DelayedReplyService) persistStatus(task *model.DelayedReplyTask, status model.TaskStatus) {
	if s.db == nil {
		return
	}
	if err := s.db.Model(&model.DelayedReplyTask{}).
		Where("task_id = ?", task.TaskID).
		Update("status", status).Error; err != nil {
		s.log.Warnf("更新任务状态失败: 任务=%s, 错误: %v", task.TaskID, err)
	}
}

func (s *DelayedReplyService) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
