package vault

import (
	"sync"
	"time"
)

// session 解锁会话，只存在于内存，进程重启即消失
type session struct {
	signer       *Signer
	unlockedAt   time.Time
	lastActivity time.Time
}

// sessionManager 每个用户至多一个会话，滑动过期。
// 过期是惰性判定的：取会话时比较 lastActivity，不做后台清扫。
type sessionManager struct {
	mu       sync.Mutex
	sessions map[int64]*session
	timeout  time.Duration
	now      func() time.Time
}

func newSessionManager(timeout time.Duration, now func() time.Time) *sessionManager {
	if now == nil {
		now = time.Now
	}
	return &sessionManager{
		sessions: make(map[int64]*session),
		timeout:  timeout,
		now:      now,
	}
}

// put 新会话替换旧会话
func (m *sessionManager) put(userID int64, signer *Signer) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.now()
	m.sessions[userID] = &session{signer: signer, unlockedAt: t, lastActivity: t}
	return t
}

// alive 持锁判定是否存活，过期则顺手删除；存活时刷新活跃时间
func (m *sessionManager) alive(userID int64) (*session, bool) {
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	t := m.now()
	if t.Sub(s.lastActivity) > m.timeout {
		delete(m.sessions, userID)
		return nil, false
	}
	s.lastActivity = t
	return s, true
}

func (m *sessionManager) touch(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.alive(userID)
	return ok
}

func (m *sessionManager) signer(userID int64) (*Signer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.alive(userID)
	if !ok {
		return nil, false
	}
	return s.signer, true
}

func (m *sessionManager) drop(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
