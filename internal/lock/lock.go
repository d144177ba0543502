// Package lock 提供以 document_id 为键的单写者锁。
// 同一文档的“查询元数据-判断-删除-写入”必须串行执行，不同文档之间互不影响。
package lock

import (
	"context"
	"sync"
)

// Locker 获取 key 上的独占锁，返回的 unlock 必须且只能调用一次。
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex 是单机部署使用的进程内锁表，键空闲后条目会被回收。
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*KeyedMutex)(nil)

// NewKeyedMutex 创建一个空锁表。
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock 阻塞直到拿到 key 的锁或 ctx 结束。
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.release(key, s)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// size 返回当前仍被持有或等待的键数量。
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
