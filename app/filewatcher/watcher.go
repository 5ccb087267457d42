package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"live-butler/app/config"
	"live-butler/app/logger"
	"live-butler/app/service"

	"github.com/fsnotify/fsnotify"
)

// RecordingWatcher 监控录播目录，对新出现的录制文件合成事件送入
// webhook 流水线。作为不发 webhook 的录播工具的兜底接入方式。
type RecordingWatcher struct {
	cfg     *config.Config
	log     *logger.Logger
	webhook *service.WebhookService

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	wg       sync.WaitGroup
	watching bool
}

// New 创建录播目录监控器
func New(cfg *config.Config, log *logger.Logger, webhook *service.WebhookService) *RecordingWatcher {
	return &RecordingWatcher{
		cfg:     cfg,
		log:     log,
		webhook: webhook,
	}
}

// Name 实现被管理服务接口
func (w *RecordingWatcher) Name() string {
	return "filewatcher"
}

// Start 启动目录监控。未配置监控目录时视为空转，直接成功。
func (w *RecordingWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return nil
	}
	if len(w.cfg.Recorder.WatchDirs) == 0 {
		w.log.Info("未配置录播监控目录，目录监控空转")
		w.watching = true
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, dir := range w.cfg.Recorder.WatchDirs {
		if err := w.addRecursive(watcher, dir); err != nil {
			watcher.Close()
			return err
		}
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.watching = true
	w.wg.Add(1)
	go w.watchLoop()

	w.log.Infof("录播目录监控已启动，监控 %d 个目录", len(w.cfg.Recorder.WatchDirs))
	return nil
}

// Stop 停止目录监控并等待事件循环退出
func (w *RecordingWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return nil
	}
	w.watching = false

	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
		w.wg.Wait()
		w.watcher = nil
	}

	w.log.Info("录播目录监控已停止")
	return nil
}

// addRecursive 递归添加目录及其子目录
func (w *RecordingWatcher) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := watcher.Add(path); err != nil {
				w.log.Warnf("添加监控目录失败: %s, 错误: %v", path, err)
			}
		}
		return nil
	})
}

// watchLoop 监控事件循环
func (w *RecordingWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Errorf("录播目录监控错误: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// handleEvent 处理文件系统事件：新目录纳入监控，新录制文件送入流水线
func (w *RecordingWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		if err := w.watcher.Add(event.Name); err != nil {
			w.log.Warnf("添加新目录监控失败: %s, 错误: %v", event.Name, err)
		}
		return
	}

	if !w.shouldProcess(event.Name) {
		return
	}

	// 稳定等待与去重由 webhook 流水线统一负责，这里只负责合成事件
	xmlPath := strings.TrimSuffix(event.Name, filepath.Ext(event.Name)) + ".xml"
	if _, err := os.Stat(xmlPath); err != nil {
		xmlPath = ""
	}

	ev := &service.WebhookEvent{
		Platform:   "filewatcher",
		EventType:  "FileCreated",
		RoomID:     service.ExtractRoomIDFromPath(event.Name),
		FilePath:   event.Name,
		XMLPath:    xmlPath,
		ReceivedAt: time.Now(),
	}

	go func() {
		result := w.webhook.ProcessEvent(context.Background(), ev)
		w.log.Debugf("目录监控事件处理结果: 文件=%s, 结果=%s", event.Name, result.Status)
	}()
}

// shouldProcess 按扩展名过滤录制文件
func (w *RecordingWatcher) shouldProcess(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range w.cfg.Recorder.WatchExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}
