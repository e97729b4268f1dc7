package reports

import (
	"context"
	"sync"

	xerrors "RebalanceChain/internal/errors"
)

// MemoryStore 是进程内的报告存储，用于测试与单机运行。
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore 创建空的内存报告存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put 保存报告并返回内容标识。
func (s *MemoryStore) Put(_ context.Context, obj any) (string, error) {
	contentID, raw, err := encode(obj)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.objects[contentID] = raw
	s.mu.Unlock()
	return contentID, nil
}

// Get 按内容标识取回报告原文。
func (s *MemoryStore) Get(_ context.Context, contentID string) ([]byte, error) {
	s.mu.RLock()
	raw, ok := s.objects[contentID]
	s.mu.RUnlock()

	if !ok {
		return nil, xerrors.New(xerrors.CodeStorageFailure, "报告不存在: "+contentID)
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Close 实现 Store 接口，内存存储无需释放资源。
func (s *MemoryStore) Close() error {
	return nil
}
