package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeManagedService 可配置启停结果的被管理服务
type fakeManagedService struct {
	name     string
	startErr error
	stopErr  error
	started  int
	stopped  int
}

func (f *fakeManagedService) Name() string { return f.name }
func (f *fakeManagedService) Start() error {
	f.started++
	return f.startErr
}
func (f *fakeManagedService) Stop() error {
	f.stopped++
	return f.stopErr
}

// fakeAudio 可配置的音频提取协作方
type fakeAudio struct {
	audioPath string
	err       error
	calls     int
}

func (f *fakeAudio) ProcessVideoForAudio(ctx context.Context, videoPath, roomID string) (string, error) {
	f.calls++
	return f.audioPath, f.err
}

// fakeAI 可配置的晚安生成协作方
type fakeAI struct {
	available bool
	result    *GoodnightResult
	err       error
	calls     int
}

func (f *fakeAI) IsAvailable() bool { return f.available }
func (f *fakeAI) GenerateGoodnight(ctx context.Context, videoPath, xmlPath, roomID string) (*GoodnightResult, error) {
	f.calls++
	return f.result, f.err
}

func newTestManager(audio *fakeAudio, ai *fakeAI) *ServiceManager {
	cfg := newTestConfig()
	return NewServiceManager(newTestLogger(), audio, ai, cfg.IsAudioOnlyRoom)
}

func writeTempVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "录制-23058-test.flv")
	if err := os.WriteFile(path, []byte("video data"), 0644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func TestServiceManager_Lifecycle(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{})
	svc := &fakeManagedService{name: "demo"}
	m.Register(svc)

	info, err := m.GetServiceInfo("demo")
	if err != nil {
		t.Fatalf("get info: %v", err)
	}
	if info.Status != StatusStopped {
		t.Fatalf("registered service should be stopped, got %s", info.Status)
	}

	if err := m.StartService("demo"); err != nil {
		t.Fatalf("start: %v", err)
	}
	info, _ = m.GetServiceInfo("demo")
	if info.Status != StatusRunning {
		t.Fatalf("expected running, got %s", info.Status)
	}
	if info.StartedAt == nil {
		t.Fatalf("running service should record start time")
	}

	// 已运行的服务不能再次启动
	if err := m.StartService("demo"); err == nil {
		t.Fatalf("starting a running service should fail")
	}

	if err := m.StopService("demo"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	info, _ = m.GetServiceInfo("demo")
	if info.Status != StatusStopped {
		t.Fatalf("expected stopped, got %s", info.Status)
	}

	// 已停止的服务不能再次停止
	if err := m.StopService("demo"); err == nil {
		t.Fatalf("stopping a stopped service should fail")
	}
}

func TestServiceManager_UnknownService(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{})

	if err := m.StartService("nope"); err == nil {
		t.Fatalf("expected error for unknown service")
	}
	if err := m.StopService("nope"); err == nil {
		t.Fatalf("expected error for unknown service")
	}
	if _, err := m.GetServiceInfo("nope"); err == nil {
		t.Fatalf("expected error for unknown service")
	}
}

func TestServiceManager_StartFailureEntersErrorState(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{})
	svc := &fakeManagedService{name: "broken", startErr: errors.New("配置缺失")}
	m.Register(svc)

	if err := m.StartService("broken"); err == nil {
		t.Fatalf("expected start to fail")
	}
	info, _ := m.GetServiceInfo("broken")
	if info.Status != StatusError {
		t.Fatalf("expected error state, got %s", info.Status)
	}
	if info.Error == "" {
		t.Fatalf("error state should carry the failure message")
	}

	// error 状态允许重新启动
	svc.startErr = nil
	if err := m.StartService("broken"); err != nil {
		t.Fatalf("restart from error state: %v", err)
	}
}

func TestServiceManager_RestartFailureLeavesSiblingsAlone(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{})
	bad := &fakeManagedService{name: "bad", stopErr: errors.New("卡死")}
	good := &fakeManagedService{name: "good"}
	m.Register(bad)
	m.Register(good)

	if err := m.StartAll(); err != nil {
		t.Fatalf("start all: %v", err)
	}

	if m.RestartService("bad") {
		t.Fatalf("restart with failing stop should return false")
	}

	info, _ := m.GetServiceInfo("good")
	if info.Status != StatusRunning {
		t.Fatalf("sibling service must stay running, got %s", info.Status)
	}
}

func TestServiceManager_HealthStatus(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{})
	m.Register(&fakeManagedService{name: "a"})
	m.Register(&fakeManagedService{name: "b"})

	health := m.GetHealthStatus()
	if health.Healthy {
		t.Fatalf("stopped services must not be healthy")
	}

	if err := m.StartAll(); err != nil {
		t.Fatalf("start all: %v", err)
	}
	health = m.GetHealthStatus()
	if !health.Healthy {
		t.Fatalf("all running should be healthy")
	}
	if len(health.Services) != 2 {
		t.Fatalf("expected 2 services in health map, got %d", len(health.Services))
	}

	if err := m.StopService("b"); err != nil {
		t.Fatalf("stop b: %v", err)
	}
	health = m.GetHealthStatus()
	if health.Healthy {
		t.Fatalf("one stopped service must break health")
	}
	if health.Services["a"] != StatusRunning || health.Services["b"] != StatusStopped {
		t.Fatalf("unexpected per-service status: %v", health.Services)
	}
}

func TestServiceManager_StartAllFailFast(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{})
	first := &fakeManagedService{name: "first"}
	second := &fakeManagedService{name: "second", startErr: errors.New("boom")}
	third := &fakeManagedService{name: "third"}
	m.Register(first)
	m.Register(second)
	m.Register(third)

	if err := m.StartAll(); err == nil {
		t.Fatalf("expected start all to fail")
	}
	if first.started != 1 {
		t.Fatalf("first service should have started")
	}
	if third.started != 0 {
		t.Fatalf("services after the failure must not start")
	}
}

func TestServiceManager_StopAllReverseOrder(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{})

	var order []string
	mk := func(name string) *orderTrackingService {
		return &orderTrackingService{name: name, order: &order}
	}
	m.Register(mk("a"))
	m.Register(mk("b"))
	m.Register(mk("c"))

	if err := m.StartAll(); err != nil {
		t.Fatalf("start all: %v", err)
	}
	order = order[:0]
	m.StopAll()

	want := []string{"c", "b", "a"}
	if len(order) != len(want) {
		t.Fatalf("expected %d stops, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected reverse order %v, got %v", want, order)
		}
	}
}

type orderTrackingService struct {
	name  string
	order *[]string
}

func (s *orderTrackingService) Name() string { return s.name }
func (s *orderTrackingService) Start() error {
	*s.order = append(*s.order, s.name)
	return nil
}
func (s *orderTrackingService) Stop() error {
	*s.order = append(*s.order, s.name)
	return nil
}

func TestProcessVideoFile_MissingFile(t *testing.T) {
	audio := &fakeAudio{}
	ai := &fakeAI{available: true}
	m := newTestManager(audio, ai)

	result := m.ProcessVideoFile(context.Background(), "/no/such/file.flv", "", "23058")
	if result.Success {
		t.Fatalf("missing file must fail the pipeline")
	}
	if len(result.Steps) != 1 {
		t.Fatalf("short-circuit should leave a single step, got %v", result.StepOrder)
	}
	if step := result.Steps[StepOverall]; step == nil || step.Success {
		t.Fatalf("expected failed overall step, got %+v", step)
	}
	if audio.calls != 0 || ai.calls != 0 {
		t.Fatalf("no collaborator should run after the file check fails")
	}
}

func TestProcessVideoFile_NonAudioRoomSkipsExtraction(t *testing.T) {
	audio := &fakeAudio{}
	m := newTestManager(audio, &fakeAI{})
	path := writeTempVideo(t)

	result := m.ProcessVideoFile(context.Background(), path, "", "92613")
	if !result.Success {
		t.Fatalf("expected success")
	}
	if _, ok := result.Steps[StepAudioProcessing]; ok {
		t.Fatalf("non audio-only room must not run audio extraction")
	}
	if audio.calls != 0 {
		t.Fatalf("audio collaborator should not be called")
	}
	if _, ok := result.Steps[StepFileCheck]; !ok {
		t.Fatalf("file check step missing")
	}
}

func TestProcessVideoFile_AudioOnlyRoom(t *testing.T) {
	audio := &fakeAudio{audioPath: "/out/a.m4a"}
	m := newTestManager(audio, &fakeAI{})
	path := writeTempVideo(t)

	result := m.ProcessVideoFile(context.Background(), path, "", "23058")
	if !result.Success {
		t.Fatalf("expected success")
	}
	step := result.Steps[StepAudioProcessing]
	if step == nil || !step.Success {
		t.Fatalf("expected successful audio step, got %+v", step)
	}
	if step.Output != "/out/a.m4a" {
		t.Fatalf("audio path should be recorded, got %v", step.Output)
	}
}

func TestProcessVideoFile_NilAudioCollaborator(t *testing.T) {
	cfg := newTestConfig()
	m := NewServiceManager(newTestLogger(), nil, nil, cfg.IsAudioOnlyRoom)
	path := writeTempVideo(t)

	// 纯音频房间在没有注入音频协作方时跳过提取，不允许崩溃
	result := m.ProcessVideoFile(context.Background(), path, "", "23058")
	if !result.Success {
		t.Fatalf("expected success, got %+v", result.Steps[StepOverall])
	}
	if _, ok := result.Steps[StepAudioProcessing]; ok {
		t.Fatalf("audio step must be absent without a collaborator")
	}
}

func TestProcessVideoFile_AudioFailureIsFatal(t *testing.T) {
	audio := &fakeAudio{err: errors.New("ffmpeg exit 1")}
	ai := &fakeAI{available: true}
	m := newTestManager(audio, ai)
	path := writeTempVideo(t)

	result := m.ProcessVideoFile(context.Background(), path, "", "23058")
	if result.Success {
		t.Fatalf("audio failure must fail the pipeline")
	}
	if ai.calls != 0 {
		t.Fatalf("ai step must not run after a fatal audio failure")
	}
}

func TestProcessVideoFile_AIFailureIsBestEffort(t *testing.T) {
	ai := &fakeAI{available: true, err: errors.New("接口限流")}
	m := newTestManager(&fakeAudio{}, ai)
	path := writeTempVideo(t)

	result := m.ProcessVideoFile(context.Background(), path, "", "92613")
	if !result.Success {
		t.Fatalf("ai failure must not flip overall success")
	}
	step := result.Steps[StepAIGeneration]
	if step == nil || step.Success {
		t.Fatalf("expected failed ai step, got %+v", step)
	}
}

func TestProcessVideoFile_AIUnavailableOmitsStep(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{available: false})
	path := writeTempVideo(t)

	result := m.ProcessVideoFile(context.Background(), path, "", "92613")
	if !result.Success {
		t.Fatalf("expected success")
	}
	if _, ok := result.Steps[StepAIGeneration]; ok {
		t.Fatalf("unavailable ai must not appear in steps")
	}
}

func TestBatchProcessFiles(t *testing.T) {
	m := newTestManager(&fakeAudio{}, &fakeAI{})
	good := writeTempVideo(t)

	results := m.BatchProcessFiles(context.Background(), []string{good, "/no/such.flv"}, "92613")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("existing file should succeed")
	}
	if results[1].Success {
		t.Fatalf("missing file should fail without aborting the batch")
	}
}
