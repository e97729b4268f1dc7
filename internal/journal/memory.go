package journal

import (
	"context"
	"sync"

	xerrors "RebalanceChain/internal/errors"
)

// MemoryRecorder 是进程内的回合日志，用于测试与单机运行。
type MemoryRecorder struct {
	mu       sync.RWMutex
	records  map[string][]Record
	snapshot map[string]any
}

// NewMemoryRecorder 创建空的内存回合日志。
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{records: make(map[string][]Record)}
}

// Append 追加一条流转记录。同一轮运行内序号必须单调递增。
func (r *MemoryRecorder) Append(_ context.Context, record Record) error {
	if record.RunID == "" {
		return xerrors.New(xerrors.CodeStorageFailure, "流转记录缺少运行标识")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.records[record.RunID]
	if len(existing) > 0 && record.Seq <= existing[len(existing)-1].Seq {
		return xerrors.New(xerrors.CodeStorageFailure, "流转记录序号必须单调递增")
	}
	r.records[record.RunID] = append(existing, record)
	return nil
}

// List 按序号顺序返回某轮运行的全部流转记录。
func (r *MemoryRecorder) List(_ context.Context, runID string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := r.records[runID]
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

// SaveSnapshot 保存本轮运行结束后的保留键快照。
func (r *MemoryRecorder) SaveSnapshot(_ context.Context, runID string, data map[string]any) error {
	if runID == "" {
		return xerrors.New(xerrors.CodeStorageFailure, "快照缺少运行标识")
	}

	snapshot := make(map[string]any, len(data))
	for k, v := range data {
		snapshot[k] = v
	}

	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()
	return nil
}

// LatestSnapshot 返回最近一次保存的保留键快照，没有时返回空映射。
func (r *MemoryRecorder) LatestSnapshot(_ context.Context) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.snapshot))
	for k, v := range r.snapshot {
		out[k] = v
	}
	return out, nil
}

// Close 实现 Recorder 接口，内存日志无需释放资源。
func (r *MemoryRecorder) Close() error {
	return nil
}
