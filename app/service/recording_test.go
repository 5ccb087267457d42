package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestExtractRoomIDFromPath(t *testing.T) {
	tests := map[string]struct {
		path string
		want string
	}{
		"录播姬默认目录":  {path: "/rec/23058/录制-23058-20240101-晚间.flv", want: "23058"},
		"文件名带房间号":  {path: "录制-92613-20240102.flv", want: "92613"},
		"下划线分隔":    {path: "room_881296_part1.flv", want: "881296"},
		"无房间号":     {path: "video.flv", want: ""},
		"数字太短":     {path: "/rec/42/video.flv", want: ""},
		"空路径":      {path: "", want: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := ExtractRoomIDFromPath(tt.path); got != tt.want {
				t.Fatalf("path %q: want %q, got %q", tt.path, tt.want, got)
			}
		})
	}
}

func TestRecordingHandler_EnqueuesGoodnightReply(t *testing.T) {
	cfg := newTestConfig()
	log := newTestLogger()
	ai := &fakeAI{
		available: true,
		result:    &GoodnightResult{TextPath: "/out/goodnight.txt", ImagePath: "/out/card.png"},
	}
	manager := NewServiceManager(log, &fakeAudio{}, ai, cfg.IsAudioOnlyRoom)
	replies := NewDelayedReplyService(cfg, log, nil, (&replyRecorder{}).execute)
	handler := NewRecordingHandler(cfg, log, manager, replies)

	path := writeTempVideo(t)
	err := handler.Handle(context.Background(), &WebhookEvent{
		Platform: "blrec",
		RoomID:   "92613",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	tasks := replies.GetTasks()
	if len(tasks) != 1 {
		t.Fatalf("expected one queued reply, got %d", len(tasks))
	}
	if tasks[0].RoomID != "92613" || tasks[0].TextPath != "/out/goodnight.txt" {
		t.Fatalf("unexpected task: %+v", tasks[0])
	}
}

func TestRecordingHandler_NoReplyWithoutAIOutput(t *testing.T) {
	cfg := newTestConfig()
	log := newTestLogger()
	manager := NewServiceManager(log, &fakeAudio{}, &fakeAI{available: false}, cfg.IsAudioOnlyRoom)
	replies := NewDelayedReplyService(cfg, log, nil, (&replyRecorder{}).execute)
	handler := NewRecordingHandler(cfg, log, manager, replies)

	path := writeTempVideo(t)
	if err := handler.Handle(context.Background(), &WebhookEvent{
		Platform: "blrec",
		RoomID:   "92613",
		FilePath: path,
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(replies.GetTasks()) != 0 {
		t.Fatalf("no reply should be queued without ai output")
	}
}

func TestRecordingHandler_PipelineFailureReturnsError(t *testing.T) {
	cfg := newTestConfig()
	log := newTestLogger()
	manager := NewServiceManager(log, &fakeAudio{}, &fakeAI{}, cfg.IsAudioOnlyRoom)
	replies := NewDelayedReplyService(cfg, log, nil, (&replyRecorder{}).execute)
	handler := NewRecordingHandler(cfg, log, manager, replies)

	err := handler.Handle(context.Background(), &WebhookEvent{
		Platform: "blrec",
		RoomID:   "92613",
		FilePath: "/no/such/file.flv",
	})
	if err == nil {
		t.Fatalf("expected error when pipeline fails")
	}
}

func TestRecordingHandler_MissingRoomIDSkipsReply(t *testing.T) {
	cfg := newTestConfig()
	log := newTestLogger()
	ai := &fakeAI{available: true, result: &GoodnightResult{TextPath: "/out/goodnight.txt"}}
	manager := NewServiceManager(log, &fakeAudio{}, ai, cfg.IsAudioOnlyRoom)
	replies := NewDelayedReplyService(cfg, log, nil, (&replyRecorder{}).execute)
	handler := NewRecordingHandler(cfg, log, manager, replies)

	path := writeTempVideo(t)
	if err := handler.Handle(context.Background(), &WebhookEvent{
		Platform: "blrec",
		FilePath: path,
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(replies.GetTasks()) != 0 {
		t.Fatalf("missing room id must skip the reply queue")
	}
}

func TestRecordingHandler_AIFailureStillSucceeds(t *testing.T) {
	cfg := newTestConfig()
	log := newTestLogger()
	ai := &fakeAI{available: true, err: errors.New("接口限流")}
	manager := NewServiceManager(log, &fakeAudio{}, ai, cfg.IsAudioOnlyRoom)
	replies := NewDelayedReplyService(cfg, log, nil, (&replyRecorder{}).execute)
	handler := NewRecordingHandler(cfg, log, manager, replies)

	path := writeTempVideo(t)
	if err := handler.Handle(context.Background(), &WebhookEvent{
		Platform: "blrec",
		RoomID:   "92613",
		FilePath: path,
	}); err != nil {
		t.Fatalf("ai failure must not fail the event: %v", err)
	}
	if len(replies.GetTasks()) != 0 {
		t.Fatalf("failed ai step must not queue a reply")
	}
}

func TestNewDynamicReplyCallback_QueuesReplyForKnownAnchor(t *testing.T) {
	// 草稿文件写入相对路径 data/replies/
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	cfg := newTestConfig()
	log := newTestLogger()
	replies := NewDelayedReplyService(cfg, log, nil, (&replyRecorder{}).execute)
	callback := NewDynamicReplyCallback(cfg, log, replies)

	// 房间 23058 配置的主播 UID
	callback("672328094", DynamicItem{ID: "dyn-1", PublishTime: time.Now()})

	tasks := replies.GetTasks()
	if len(tasks) != 1 {
		t.Fatalf("expected one queued reply, got %d", len(tasks))
	}
	if tasks[0].RoomID != "23058" {
		t.Fatalf("reply should target the anchor's room, got %s", tasks[0].RoomID)
	}
	if tasks[0].TextPath == "" {
		t.Fatalf("draft path should be recorded")
	}
}

func TestNewDynamicReplyCallback_IgnoresUnknownUID(t *testing.T) {
	cfg := newTestConfig()
	log := newTestLogger()
	replies := NewDelayedReplyService(cfg, log, nil, (&replyRecorder{}).execute)
	callback := NewDynamicReplyCallback(cfg, log, replies)

	callback("999999", DynamicItem{ID: "dyn-2", PublishTime: time.Now()})
	if len(replies.GetTasks()) != 0 {
		t.Fatalf("unknown uid must not queue a reply")
	}
}
