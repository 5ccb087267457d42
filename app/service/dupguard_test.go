package service

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestDuplicateGuard_AcquireRelease(t *testing.T) {
	guard := NewDuplicateGuard()

	if !guard.TryAcquire("/rec/a.flv") {
		t.Fatalf("first acquire should succeed")
	}
	if guard.TryAcquire("/rec/a.flv") {
		t.Fatalf("second acquire of same path should fail")
	}
	if !guard.TryAcquire("/rec/b.flv") {
		t.Fatalf("different path should not be blocked")
	}

	guard.Release("/rec/a.flv")
	if !guard.TryAcquire("/rec/a.flv") {
		t.Fatalf("acquire after release should succeed")
	}

	// 重复释放是无操作
	guard.Release("/rec/unknown.flv")
	guard.Release("/rec/a.flv")
	guard.Release("/rec/a.flv")

	if guard.Count() != 1 {
		t.Fatalf("expected 1 in-flight path, got %d", guard.Count())
	}
}

func TestDuplicateGuard_ConcurrentSingleWinner(t *testing.T) {
	guard := NewDuplicateGuard()

	const workers = 50
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if guard.TryAcquire("/rec/same.flv") {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if got := guard.InFlight(); len(got) != 1 || got[0] != "/rec/same.flv" {
		t.Fatalf("unexpected in-flight set: %v", got)
	}
}
