package session

import (
	"context"
	"sync"
)

// MemoryStore はメモリ上にセッションを保持するStore。
// プロセス終了で失われるため、テストや一時的な利用に使う。
type MemoryStore struct {
	broadcaster

	// order は変更とその通知の組を直列化する。
	order   sync.Mutex
	mu      sync.RWMutex
	current Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Initialize はトークンと表示名を保存する。
func (m *MemoryStore) Initialize(_ context.Context, token, displayName string) error {
	s, err := normalize(token, displayName)
	if err != nil {
		return err
	}

	m.order.Lock()
	defer m.order.Unlock()

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	return m.publishInitialized(s)
}

// Current は現在のセッションを返す。
func (m *MemoryStore) Current(_ context.Context) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.current.Present(), nil
}

// Clear はセッションを破棄する。
func (m *MemoryStore) Clear(_ context.Context) error {
	m.order.Lock()
	defer m.order.Unlock()

	m.mu.Lock()
	prev := m.current
	m.current = Session{}
	m.mu.Unlock()

	if !prev.Present() {
		return nil
	}
	return m.publishCleared(prev)
}
