package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeFeed 按 UID 返回固定动态列表或错误
type fakeFeed struct {
	mu    sync.Mutex
	items map[string][]DynamicItem
	errs  map[string]error
	calls int
}

func (f *fakeFeed) GetDynamicsSince(ctx context.Context, uid string, since time.Time) ([]DynamicItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[uid]; err != nil {
		return nil, err
	}
	return f.items[uid], nil
}

// callbackRecorder 记录回调顺序
type callbackRecorder struct {
	mu    sync.Mutex
	items []DynamicItem
}

func (r *callbackRecorder) callback(uid string, item DynamicItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
}

func (r *callbackRecorder) snapshot() []DynamicItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DynamicItem, len(r.items))
	copy(out, r.items)
	return out
}

func TestAddRemoveAnchor(t *testing.T) {
	svc := NewDynamicPollingService(newTestConfig(), newTestLogger(), &fakeFeed{}, func(string, DynamicItem) {})

	if err := svc.AddAnchor("", AnchorConfig{}); err == nil {
		t.Fatalf("empty uid should be rejected")
	}
	if err := svc.AddAnchor("672328094", AnchorConfig{RoomID: "23058"}); err != nil {
		t.Fatalf("add anchor: %v", err)
	}
	if err := svc.AddAnchor("672328094", AnchorConfig{}); err == nil {
		t.Fatalf("duplicate uid should be rejected")
	}

	anchors := svc.GetAnchors()
	if len(anchors) != 1 || anchors[0].UID != "672328094" || anchors[0].RoomID != "23058" {
		t.Fatalf("unexpected anchors: %+v", anchors)
	}

	if err := svc.RemoveAnchor("672328094"); err != nil {
		t.Fatalf("remove anchor: %v", err)
	}
	if err := svc.RemoveAnchor("672328094"); err == nil {
		t.Fatalf("removing unknown anchor should fail")
	}
}

func TestPollAnchor_CallbackAscendingOrder(t *testing.T) {
	now := time.Now()
	feed := &fakeFeed{items: map[string][]DynamicItem{
		"100": {
			{ID: "d3", PublishTime: now.Add(3 * time.Hour)},
			{ID: "d1", PublishTime: now.Add(1 * time.Hour)},
			{ID: "d2", PublishTime: now.Add(2 * time.Hour)},
		},
	}}
	recorder := &callbackRecorder{}
	svc := NewDynamicPollingService(newTestConfig(), newTestLogger(), feed, recorder.callback)
	if err := svc.AddAnchor("100", AnchorConfig{}); err != nil {
		t.Fatalf("add anchor: %v", err)
	}

	svc.pollAnchor("100")

	got := recorder.snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 callbacks, got %d", len(got))
	}
	for i, want := range []string{"d1", "d2", "d3"} {
		if got[i].ID != want {
			t.Fatalf("callback order wrong at %d: want %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestPollAnchor_LastCheckTimeAdvancesMonotonically(t *testing.T) {
	now := time.Now()
	feed := &fakeFeed{items: map[string][]DynamicItem{
		"100": {{ID: "d1", PublishTime: now.Add(time.Hour)}},
	}}
	recorder := &callbackRecorder{}
	svc := NewDynamicPollingService(newTestConfig(), newTestLogger(), feed, recorder.callback)
	svc.AddAnchor("100", AnchorConfig{})

	svc.pollAnchor("100")
	if len(recorder.snapshot()) != 1 {
		t.Fatalf("expected one callback on first poll")
	}

	anchors := svc.GetAnchors()
	if !anchors[0].LastCheckTime.Equal(now.Add(time.Hour)) {
		t.Fatalf("last check time should advance to the newest item, got %v", anchors[0].LastCheckTime)
	}

	// 同样的条目第二轮不再触发回调
	svc.pollAnchor("100")
	if len(recorder.snapshot()) != 1 {
		t.Fatalf("already-seen item must not fire the callback again")
	}
}

func TestPollAnchor_LiveStartTimeFiltersOlderItems(t *testing.T) {
	now := time.Now()
	feed := &fakeFeed{items: map[string][]DynamicItem{
		"100": {
			{ID: "before", PublishTime: now.Add(time.Hour)},
			{ID: "after", PublishTime: now.Add(3 * time.Hour)},
		},
	}}
	recorder := &callbackRecorder{}
	svc := NewDynamicPollingService(newTestConfig(), newTestLogger(), feed, recorder.callback)
	svc.AddAnchor("100", AnchorConfig{})
	if err := svc.SetLiveStartTime("100", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("set live start: %v", err)
	}

	svc.pollAnchor("100")

	got := recorder.snapshot()
	if len(got) != 1 || got[0].ID != "after" {
		t.Fatalf("only items after live start should fire, got %+v", got)
	}
}

func TestPollAll_ErrorIsolatedPerAnchor(t *testing.T) {
	now := time.Now()
	feed := &fakeFeed{
		items: map[string][]DynamicItem{
			"ok": {{ID: "d1", PublishTime: now.Add(time.Hour)}},
		},
		errs: map[string]error{
			"broken": errors.New("风控校验失败"),
		},
	}
	recorder := &callbackRecorder{}
	svc := NewDynamicPollingService(newTestConfig(), newTestLogger(), feed, recorder.callback)
	svc.AddAnchor("broken", AnchorConfig{})
	svc.AddAnchor("ok", AnchorConfig{})

	svc.pollAll()

	got := recorder.snapshot()
	if len(got) != 1 || got[0].ID != "d1" {
		t.Fatalf("healthy anchor should still be polled, got %+v", got)
	}
}

func TestPollAnchor_PanicInCallbackContained(t *testing.T) {
	now := time.Now()
	feed := &fakeFeed{items: map[string][]DynamicItem{
		"100": {{ID: "d1", PublishTime: now.Add(time.Hour)}},
	}}
	svc := NewDynamicPollingService(newTestConfig(), newTestLogger(), feed, func(string, DynamicItem) {
		panic("callback exploded")
	})
	svc.AddAnchor("100", AnchorConfig{})

	// 不应让 panic 逃逸到调用方
	svc.pollAnchor("100")
}

func TestDynamicPollingService_StartStop(t *testing.T) {
	svc := NewDynamicPollingService(newTestConfig(), newTestLogger(), &fakeFeed{}, func(string, DynamicItem) {})

	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	// 重复启动是无操作
	if err := svc.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
