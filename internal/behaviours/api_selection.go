package behaviours

import (
	"context"

	"RebalanceChain/internal/consensus"
)

// ApiSelectionBehaviour 提议本轮使用的价格源。
// 除非显式配置为备选源，否则总是提议默认源。
type ApiSelectionBehaviour struct {
	deps Deps
}

// NewApiSelectionBehaviour 创建价格源协商行为。
func NewApiSelectionBehaviour(deps Deps) *ApiSelectionBehaviour {
	return &ApiSelectionBehaviour{deps: deps}
}

// RoundID 返回匹配的回合标识。
func (b *ApiSelectionBehaviour) RoundID() consensus.RoundID {
	return consensus.RoundApiSelection
}

// Act 计算本方的价格源提案。
func (b *ApiSelectionBehaviour) Act(_ context.Context, _ *consensus.SynchronizedData) (consensus.Payload, error) {
	selection := consensus.DefaultApiSelection
	if b.deps.ApiPreference == "coinmarketcap" {
		selection = b.deps.ApiPreference
	}
	return consensus.ApiSelectionPayload{
		AgentID:      b.deps.AgentID,
		ApiSelection: selection,
	}, nil
}
