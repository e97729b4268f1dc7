// Package journal 持久化回合流转记录：每次状态机流转落一条
// (回合, 事件, 状态摘要) 审计记录，用于事后核对各节点的
// 确定性回放是否一致；同时保存跨轮次保留键的快照。
package journal

import (
	"context"
)

// Record 是一条回合流转的审计记录。
type Record struct {
	RunID     string
	Seq       int
	FromRound string
	Event     string
	ToRound   string
	StateHash string
	Payloads  int
	CreatedAt int64
}

// Recorder 抽象回合日志的持久化接口。
type Recorder interface {
	Append(ctx context.Context, record Record) error
	List(ctx context.Context, runID string) ([]Record, error)
	SaveSnapshot(ctx context.Context, runID string, data map[string]any) error
	LatestSnapshot(ctx context.Context) (map[string]any, error)
	Close() error
}
