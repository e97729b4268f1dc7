package behaviours

import (
	"context"
	"encoding/json"
	"log/slog"

	"RebalanceChain/internal/consensus"
	"RebalanceChain/internal/portfolio"
	"RebalanceChain/pkg/logger"
)

// DecisionBehaviour 基于共识后的估值判断是否需要调仓。
type DecisionBehaviour struct {
	deps Deps
	log  *slog.Logger
}

// NewDecisionBehaviour 创建决策行为。
func NewDecisionBehaviour(deps Deps) *DecisionBehaviour {
	return &DecisionBehaviour{deps: deps, log: logger.Named("behaviours")}
}

// RoundID 返回匹配的回合标识。
func (b *DecisionBehaviour) RoundID() consensus.RoundID {
	return consensus.RoundDecisionMaking
}

// Act 计算调仓动作。偏离都在阈值内时提交 done，
// 需要调仓时提交 transact 与调仓映射。
func (b *DecisionBehaviour) Act(ctx context.Context, data *consensus.SynchronizedData) (consensus.Payload, error) {
	done := consensus.DecisionPayload{AgentID: b.deps.AgentID, Event: string(consensus.EventDone)}

	encoded, ok := data.TokenValues()
	if !ok {
		b.log.Warn("同步状态缺少估值结果，无需调仓")
		return done, nil
	}
	var tokenValues map[string]float64
	if err := json.Unmarshal([]byte(encoded), &tokenValues); err != nil {
		b.log.Error("解析估值结果失败", slog.Any("error", err))
		return done, nil
	}

	total, ok := data.TotalPortfolioValue()
	if !ok || total <= 0 {
		b.log.Warn("组合总价值缺失或为零，无需调仓")
		return done, nil
	}

	prices := b.fetchPrices(ctx, data)
	actions := portfolio.CalculateRebalancingActions(tokenValues, total, b.deps.Params, prices)
	if len(actions) == 0 {
		b.log.Info("全部代币偏离都在阈值内")
		return done, nil
	}

	serializedActions, err := json.Marshal(actions)
	if err != nil {
		b.log.Error("序列化调仓映射失败", slog.Any("error", err))
		return done, nil
	}
	adjustments := string(serializedActions)

	return consensus.DecisionPayload{
		AgentID:            b.deps.AgentID,
		Event:              string(consensus.EventTransact),
		AdjustmentBalances: &adjustments,
	}, nil
}

func (b *DecisionBehaviour) fetchPrices(ctx context.Context, data *consensus.SynchronizedData) map[string]float64 {
	prices := make(map[string]float64, len(b.deps.Params.Tokens))

	source, ok := b.deps.priceSource(data)
	if !ok {
		b.log.Error("没有匹配协商结果的价格源", slog.String("selection", data.ApiSelection()))
		return prices
	}
	for _, token := range b.deps.Params.Tokens {
		price, err := source.Price(ctx, token)
		if err != nil {
			b.log.Warn("获取代币价格失败", slog.String("token", token), slog.Any("error", err))
			continue
		}
		prices[token] = price
	}
	return prices
}
