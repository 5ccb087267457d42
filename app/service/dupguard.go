package service

import (
	"sync"
)

// DuplicateGuard 记录正在处理中的文件路径，防止同一文件被并发处理。
// 录播工具对同一文件重复发通知是正常现象，不是异常。
type DuplicateGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewDuplicateGuard 创建去重守卫
func NewDuplicateGuard() *DuplicateGuard {
	return &DuplicateGuard{
		inFlight: make(map[string]struct{}),
	}
}

// TryAcquire 尝试占用路径。路径未被占用时标记为处理中并返回 true，
// 已被占用时返回 false。
func (g *DuplicateGuard) TryAcquire(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.inFlight[path]; exists {
		return false
	}
	g.inFlight[path] = struct{}{}
	return true
}

// Release 释放路径占用。幂等，未占用的路径调用也安全。
func (g *DuplicateGuard) Release(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inFlight, path)
}

// InFlight 返回当前处理中的路径列表
func (g *DuplicateGuard) InFlight() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	paths := make([]string, 0, len(g.inFlight))
	for path := range g.inFlight {
		paths = append(paths, path)
	}
	return paths
}

// Count 返回当前处理中的路径数量
func (g *DuplicateGuard) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.inFlight)
}
