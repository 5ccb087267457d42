package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"live-butler/app/errs"
	"live-butler/app/logger"
)

// ServiceStatus 被管理服务的生命周期状态
type ServiceStatus string

const (
	StatusStopped  ServiceStatus = "stopped"
	StatusStarting ServiceStatus = "starting"
	StatusRunning  ServiceStatus = "running"
	StatusStopping ServiceStatus = "stopping"
	StatusError    ServiceStatus = "error"
)

// ServiceInfo 单个被管理服务的状态信息
type ServiceInfo struct {
	Name      string        `json:"name"`
	Status    ServiceStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime"`
}

// ManagedService 可被生命周期管理的服务
type ManagedService interface {
	Name() string
	Start() error
	Stop() error
}

// AudioProcessor 音频提取协作方。返回空字符串表示跳过，不是错误。
type AudioProcessor interface {
	ProcessVideoForAudio(ctx context.Context, videoPath, roomID string) (string, error)
}

// GoodnightResult AI 生成产物
type GoodnightResult struct {
	TextPath  string `json:"text_path"`
	ImagePath string `json:"image_path,omitempty"`
}

// AIGenerator 晚安文案/漫画生成协作方
type AIGenerator interface {
	IsAvailable() bool
	GenerateGoodnight(ctx context.Context, videoPath, xmlPath, roomID string) (*GoodnightResult, error)
}

// RoomPolicy 房间策略函数：是否为仅保留音频的房间
type RoomPolicy func(roomID string) bool

// ProcessingStepResult 流水线单步结果
type ProcessingStepResult struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VideoProcessingResult 一次完整流水线调用的结果。
// StepOrder 记录步骤执行顺序；被策略跳过的步骤不出现在 Steps 中。
type VideoProcessingResult struct {
	Success        bool                             `json:"success"`
	Steps          map[string]*ProcessingStepResult `json:"steps"`
	StepOrder      []string                         `json:"step_order"`
	VideoPath      string                           `json:"video_path"`
	RoomID         string                           `json:"room_id,omitempty"`
	ProcessingTime time.Duration                    `json:"processing_time"`
}

func (r *VideoProcessingResult) addStep(name string, step *ProcessingStepResult) {
	r.Steps[name] = step
	r.StepOrder = append(r.StepOrder, name)
}

// BatchFileResult 批量处理中单个文件的摘要
type BatchFileResult struct {
	VideoPath string                 `json:"video_path"`
	Success   bool                   `json:"success"`
	Result    *VideoProcessingResult `json:"result"`
}

// ServiceManager 管理各服务的生命周期，并实现录播文件处理流水线
type ServiceManager struct {
	mu       sync.RWMutex
	services map[string]ManagedService
	infos    map[string]*ServiceInfo
	order    []string

	log       *logger.Logger
	audio     AudioProcessor
	ai        AIGenerator
	audioOnly RoomPolicy
}

// NewServiceManager 创建服务管理器
func NewServiceManager(log *logger.Logger, audio AudioProcessor, ai AIGenerator, audioOnly RoomPolicy) *ServiceManager {
	return &ServiceManager{
		services:  make(map[string]ManagedService),
		infos:     make(map[string]*ServiceInfo),
		log:       log,
		audio:     audio,
		ai:        ai,
		audioOnly: audioOnly,
	}
}

// Register 注册被管理服务，初始状态为 stopped
func (m *ServiceManager) Register(svc ManagedService) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := svc.Name()
	if _, exists := m.services[name]; !exists {
		m.order = append(m.order, name)
	}
	m.services[name] = svc
	m.infos[name] = &ServiceInfo{Name: name, Status: StatusStopped}
}

// setStatus 更新服务状态，进入 running 时记录启动时间
func (m *ServiceManager) setStatus(name string, status ServiceStatus, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := m.infos[name]
	if info == nil {
		return
	}
	info.Status = status
	info.Error = errMsg
	switch status {
	case StatusRunning:
		now := time.Now()
		info.StartedAt = &now
	case StatusStopped:
		info.StartedAt = nil
	}
}

// StartService 启动服务：stopped → starting → running，失败转入 error 状态
func (m *ServiceManager) StartService(name string) error {
	m.mu.Lock()
	svc, exists := m.services[name]
	if !exists {
		m.mu.Unlock()
		return errs.NotFound(fmt.Sprintf("服务不存在: %s", name))
	}
	info := m.infos[name]
	if info.Status != StatusStopped && info.Status != StatusError {
		m.mu.Unlock()
		return errs.Validation(fmt.Sprintf("服务 %s 当前状态为 %s，无法启动", name, info.Status))
	}
	info.Status = StatusStarting
	info.Error = ""
	m.mu.Unlock()

	if err := svc.Start(); err != nil {
		m.setStatus(name, StatusError, err.Error())
		m.log.Errorf("启动服务失败: %s, 错误: %v", name, err)
		return errs.E(errs.KindInternal, fmt.Sprintf("启动服务失败: %s", name), err)
	}

	m.setStatus(name, StatusRunning, "")
	m.log.Infof("服务已启动: %s", name)
	return nil
}

// StopService 停止服务：running → stopping → stopped，失败转入 error 状态
func (m *ServiceManager) StopService(name string) error {
	m.mu.Lock()
	svc, exists := m.services[name]
	if !exists {
		m.mu.Unlock()
		return errs.NotFound(fmt.Sprintf("服务不存在: %s", name))
	}
	info := m.infos[name]
	if info.Status != StatusRunning {
		m.mu.Unlock()
		return errs.Validation(fmt.Sprintf("服务 %s 当前状态为 %s，无法停止", name, info.Status))
	}
	info.Status = StatusStopping
	m.mu.Unlock()

	if err := svc.Stop(); err != nil {
		m.setStatus(name, StatusError, err.Error())
		m.log.Errorf("停止服务失败: %s, 错误: %v", name, err)
		return errs.E(errs.KindInternal, fmt.Sprintf("停止服务失败: %s", name), err)
	}

	m.setStatus(name, StatusStopped, "")
	m.log.Infof("服务已停止: %s", name)
	return nil
}

// RestartService 重启服务，任一半失败都返回 false 而不是抛出错误
func (m *ServiceManager) RestartService(name string) bool {
	if err := m.StopService(name); err != nil {
		m.log.Warnf("重启服务失败（停止阶段）: %s, 错误: %v", name, err)
		return false
	}
	if err := m.StartService(name); err != nil {
		m.log.Warnf("重启服务失败（启动阶段）: %s, 错误: %v", name, err)
		return false
	}
	return true
}

// GetServiceInfo 返回指定服务的状态快照
func (m *ServiceManager) GetServiceInfo(name string) (*ServiceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.infos[name]
	if !exists {
		return nil, errs.NotFound(fmt.Sprintf("服务不存在: %s", name))
	}
	return m.snapshot(info), nil
}

// GetAllServices 返回全部服务的状态快照，按注册顺序
func (m *ServiceManager) GetAllServices() []*ServiceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ServiceInfo, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.snapshot(m.infos[name]))
	}
	return out
}

// snapshot 复制状态并计算运行时长，调用方需持有读锁
func (m *ServiceManager) snapshot(info *ServiceInfo) *ServiceInfo {
	cp := *info
	if info.StartedAt != nil {
		cp.Uptime = time.Since(*info.StartedAt)
	}
	return &cp
}

// HealthStatus 聚合健康状态
type HealthStatus struct {
	Healthy  bool                     `json:"healthy"`
	Services map[string]ServiceStatus `json:"services"`
}

// GetHealthStatus 所有已注册服务都在运行时才算健康
func (m *ServiceManager) GetHealthStatus() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := HealthStatus{
		Healthy:  true,
		Services: make(map[string]ServiceStatus, len(m.infos)),
	}
	for name, info := range m.infos {
		health.Services[name] = info.Status
		if info.Status != StatusRunning {
			health.Healthy = false
		}
	}
	return health
}

// StartAll 按注册顺序启动全部服务，任一失败即返回该错误
func (m *ServiceManager) StartAll() error {
	m.mu.RLock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	m.mu.RUnlock()

	for _, name := range names {
		if err := m.StartService(name); err != nil {
			return err
		}
	}
	return nil
}

// StopAll 按注册逆序停止全部服务，单个失败不阻断其余服务
func (m *ServiceManager) StopAll() {
	m.mu.RLock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	m.mu.RUnlock()

	for i := len(names) - 1; i >= 0; i-- {
		if err := m.StopService(names[i]); err != nil {
			m.log.Warnf("停止服务 %s 失败: %v", names[i], err)
		}
	}
}

// 流水线步骤名
const (
	StepOverall         = "overall"
	StepFileCheck       = "fileCheck"
	StepAudioProcessing = "audioProcessing"
	StepAIGeneration    = "aiGeneration"
)

// ProcessVideoFile 录播文件处理流水线。
// fileCheck 失败时整体短路；audioProcessing 仅对音频房间执行且失败致命；
// aiGeneration 是尽力而为的增强步骤，失败不影响整体成功。
func (m *ServiceManager) ProcessVideoFile(ctx context.Context, videoPath, xmlPath, roomID string) *VideoProcessingResult {
	startTime := time.Now()
	result := &VideoProcessingResult{
		Success:   true,
		Steps:     make(map[string]*ProcessingStepResult),
		VideoPath: videoPath,
		RoomID:    roomID,
	}
	defer func() {
		result.ProcessingTime = time.Since(startTime)
	}()

	// 步骤一：文件检查，失败短路整条流水线
	if !fileExists(videoPath) {
		m.log.Errorf("视频文件不存在: %s", videoPath)
		result.Success = false
		result.addStep(StepOverall, &ProcessingStepResult{
			Success: false,
			Error:   "视频文件不存在: " + videoPath,
		})
		return result
	}
	result.addStep(StepFileCheck, &ProcessingStepResult{Success: true})

	// 步骤二：音频提取，仅对配置为纯音频的房间执行
	if roomID != "" && m.audioOnly != nil && m.audioOnly(roomID) && m.audio != nil {
		audioPath, err := m.audio.ProcessVideoForAudio(ctx, videoPath, roomID)
		if err != nil {
			m.log.Errorf("音频提取失败: %s, 错误: %v", videoPath, err)
			result.Success = false
			result.addStep(StepAudioProcessing, &ProcessingStepResult{
				Success: false,
				Error:   err.Error(),
			})
			return result
		} else if audioPath != "" {
			result.addStep(StepAudioProcessing, &ProcessingStepResult{
				Success: true,
				Output:  audioPath,
			})
		} else {
			// 协作方返回空路径表示跳过，视为成功
			result.addStep(StepAudioProcessing, &ProcessingStepResult{Success: true})
		}
	}

	// 步骤三：AI 晚安生成，失败不影响整体成功
	if m.ai != nil && m.ai.IsAvailable() {
		goodnight, err := m.ai.GenerateGoodnight(ctx, videoPath, xmlPath, roomID)
		if err != nil {
			m.log.Warnf("AI 生成失败（不影响整体结果）: %s, 错误: %v", videoPath, err)
			result.addStep(StepAIGeneration, &ProcessingStepResult{
				Success: false,
				Error:   err.Error(),
			})
		} else {
			result.addStep(StepAIGeneration, &ProcessingStepResult{
				Success: true,
				Output:  goodnight,
			})
		}
	}

	return result
}

// BatchProcessFiles 顺序处理多个文件，单个文件失败不中断批次
func (m *ServiceManager) BatchProcessFiles(ctx context.Context, videoPaths []string, roomID string) []BatchFileResult {
	results := make([]BatchFileResult, 0, len(videoPaths))
	for _, path := range videoPaths {
		r := m.ProcessVideoFile(ctx, path, "", roomID)
		results = append(results, BatchFileResult{
			VideoPath: path,
			Success:   r.Success,
			Result:    r,
		})
	}
	return results
}
