package vault

import (
	"sync"
	"time"
)

type attemptState struct {
	count    int
	lastFail time.Time
}

// attemptTracker 连续失败计数器。
// 尝试在验证凭据之前先 begin 占位：自增与上限检查在同一临界区内完成，
// 并发的解锁尝试不可能都观察到低于上限的计数。
// 验证结束后 confirm (真实失败) 或 rollback (未消耗凭据) 收尾。
type attemptTracker struct {
	mu    sync.Mutex
	state map[int64]*attemptState
	max   int
	decay time.Duration // 0 = 只能靠成功解锁或管理员重置
	now   func() time.Time
}

func newAttemptTracker(max int, decay time.Duration, now func() time.Time) *attemptTracker {
	if now == nil {
		now = time.Now
	}
	return &attemptTracker{
		state: make(map[int64]*attemptState),
		max:   max,
		decay: decay,
		now:   now,
	}
}

// 持锁执行，衰减周期已过则清零
func (t *attemptTracker) decayed(s *attemptState) bool {
	return t.decay > 0 && t.now().Sub(s.lastFail) >= t.decay
}

// begin 原子占位：同一临界区内把计数加一并与上限比较。
// 返回 false 表示已达上限，本次尝试直接拒绝，不验证凭据。
func (t *attemptTracker) begin(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[userID]
	if !ok || t.decayed(s) {
		s = &attemptState{}
		t.state[userID] = s
	}
	if s.count >= t.max {
		return false
	}
	s.count++
	s.lastFail = t.now()
	return true
}

// confirm 把占位确认为一次真实失败，返回剩余可尝试次数
func (t *attemptTracker) confirm(userID int64) (remaining int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[userID]
	if !ok {
		return t.max
	}
	s.lastFail = t.now()
	remaining = t.max - s.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// rollback 撤销占位：本次尝试没有消耗凭据 (缺二次验证 token、内部错误)
func (t *attemptTracker) rollback(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[userID]
	if !ok {
		return
	}
	if s.count > 0 {
		s.count--
	}
	if s.count == 0 {
		delete(t.state, userID)
	}
}

// reset 成功解锁或管理员重置时调用
func (t *attemptTracker) reset(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, userID)
}
