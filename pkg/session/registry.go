package session

import "sync"

// Registry 进程级 user_id → Session 映射。
// 临界区只做 map 读写，不做任何 I/O。
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry create registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get 查找用户会话
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Replace 登记新会话并返回被顶替的旧会话（若有）
func (r *Registry) Replace(userID string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[userID]
	r.sessions[userID] = s
	return prev
}

// RemoveIf 仅当登记项仍指向 s 时删除，避免误删重连后的新会话
func (r *Registry) RemoveIf(userID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[userID] == s {
		delete(r.sessions, userID)
		return true
	}
	return false
}

// All 当前全部会话的快照
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
