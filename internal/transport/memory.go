package transport

import (
	"context"
	"sync"

	"RebalanceChain/internal/consensus"
	xerrors "RebalanceChain/internal/errors"
)

const memberBuffer = 256

// MemoryHub 是进程内的广播枢纽，用于测试与单进程多智能体运行。
type MemoryHub struct {
	mu      sync.RWMutex
	members map[string]chan consensus.Envelope
	closed  bool
}

// NewMemoryHub 创建空的广播枢纽。
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{members: make(map[string]chan consensus.Envelope)}
}

// Join 为参与方接入枢纽，返回其专属的广播端点。
func (h *MemoryHub) Join(agentID string) (*MemoryTransport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, xerrors.New(xerrors.CodeTransportFailure, "广播枢纽已关闭")
	}
	if _, ok := h.members[agentID]; ok {
		return nil, xerrors.New(xerrors.CodeTransportFailure, "参与方已接入: "+agentID)
	}

	ch := make(chan consensus.Envelope, memberBuffer)
	h.members[agentID] = ch
	return &MemoryTransport{hub: h, agentID: agentID, inbox: ch}, nil
}

func (h *MemoryHub) broadcast(env consensus.Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return xerrors.New(xerrors.CodeTransportFailure, "广播枢纽已关闭")
	}
	for _, ch := range h.members {
		select {
		case ch <- env:
		default:
			// 接收方积压时丢弃，回合超时会触发重试。
		}
	}
	return nil
}

func (h *MemoryHub) leave(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.members[agentID]; ok {
		close(ch)
		delete(h.members, agentID)
	}
}

// Close 关闭枢纽并断开所有参与方。
func (h *MemoryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.members {
		close(ch)
		delete(h.members, id)
	}
}

// MemoryTransport 是单个参与方在枢纽上的端点。
type MemoryTransport struct {
	hub     *MemoryHub
	agentID string
	inbox   chan consensus.Envelope
	once    sync.Once
}

// Broadcast 把信封送达枢纽上的全部参与方，包括自己。
func (t *MemoryTransport) Broadcast(ctx context.Context, env consensus.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return t.hub.broadcast(env)
}

// Receive 返回本参与方的收件通道。
func (t *MemoryTransport) Receive() <-chan consensus.Envelope {
	return t.inbox
}

// Close 把本参与方从枢纽断开。
func (t *MemoryTransport) Close() error {
	t.once.Do(func() { t.hub.leave(t.agentID) })
	return nil
}
