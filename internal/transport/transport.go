// Package transport 提供参与方之间复制载荷的广播通道。
// 语义是尽力而为的全量广播：每条信封送达所有参与方，
// 包括发送者自己；去重与回合归属由共识层负责。
package transport

import (
	"context"

	"RebalanceChain/internal/consensus"
)

// Broadcaster 把信封广播给全部参与方，并接收别人广播的信封。
type Broadcaster interface {
	Broadcast(ctx context.Context, env consensus.Envelope) error
	Receive() <-chan consensus.Envelope
	Close() error
}
