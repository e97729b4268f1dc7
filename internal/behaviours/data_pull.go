package behaviours

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"

	"github.com/google/uuid"

	"RebalanceChain/internal/consensus"
	"RebalanceChain/internal/portfolio"
	"RebalanceChain/pkg/logger"
)

// DataPullBehaviour 独立完成组合估值并提交结果。
// 主数据路径与备选路径共用同一实现，仅回合标识与
// 实际选中的价格源不同。
type DataPullBehaviour struct {
	deps  Deps
	round consensus.RoundID
	log   *slog.Logger
}

// NewDataPullBehaviour 创建主数据拉取行为。
func NewDataPullBehaviour(deps Deps) *DataPullBehaviour {
	return &DataPullBehaviour{deps: deps, round: consensus.RoundDataPull, log: logger.Named("behaviours")}
}

// NewAlternativeDataPullBehaviour 创建备选数据源的数据拉取行为。
func NewAlternativeDataPullBehaviour(deps Deps) *DataPullBehaviour {
	return &DataPullBehaviour{deps: deps, round: consensus.RoundAlternativeDataPull, log: logger.Named("behaviours")}
}

// RoundID 返回匹配的回合标识。
func (b *DataPullBehaviour) RoundID() consensus.RoundID {
	return b.round
}

// Act 读取余额与价格、完成估值并生成载荷。
// 估值失败时提交空载荷（TokenValues 为 nil、总值为零），
// 表示本方未能得出可用值。
func (b *DataPullBehaviour) Act(ctx context.Context, data *consensus.SynchronizedData) (consensus.Payload, error) {
	empty := consensus.DataPullPayload{AgentID: b.deps.AgentID}

	balances := b.fetchBalances(ctx)
	prices := b.fetchPrices(ctx, data)

	tokenValues, total, err := portfolio.CalculateAllocation(balances, prices)
	if err != nil {
		b.log.Error("组合估值失败", slog.Any("error", err))
		return empty, nil
	}

	encoded, err := json.Marshal(tokenValues)
	if err != nil {
		b.log.Error("序列化估值结果失败", slog.Any("error", err))
		return empty, nil
	}
	serialized := string(encoded)

	b.storeReport(ctx, balances, prices, tokenValues, total)

	return consensus.DataPullPayload{
		AgentID:             b.deps.AgentID,
		TokenValues:         &serialized,
		TotalPortfolioValue: total,
	}, nil
}

// fetchBalances 逐代币读取链上余额，失败的代币跳过。
func (b *DataPullBehaviour) fetchBalances(ctx context.Context) map[string]float64 {
	balances := make(map[string]float64, len(b.deps.Params.Tokens))
	for _, token := range b.deps.Params.Tokens {
		raw, err := b.deps.Balances.GetBalance(ctx, b.deps.PortfolioUser, token)
		if err != nil {
			b.log.Warn("读取代币余额失败", slog.String("token", token), slog.Any("error", err))
			continue
		}
		value, _ := new(big.Float).SetInt(raw).Float64()
		balances[token] = value
	}
	return balances
}

// fetchPrices 按协商的价格源逐代币取价，失败的代币跳过。
func (b *DataPullBehaviour) fetchPrices(ctx context.Context, data *consensus.SynchronizedData) map[string]float64 {
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

// storeReport 生成调仓快照并写入报告存储。存储失败只记日志,
// 不影响载荷提交。
func (b *DataPullBehaviour) storeReport(ctx context.Context, balances, prices, tokenValues map[string]float64, total float64) {
	if b.deps.Reports == nil {
		return
	}
	actions := portfolio.CalculateRebalancingActions(tokenValues, total, b.deps.Params, prices)
	report := portfolio.BuildReport(uuid.NewString(), balances, prices, tokenValues, total, b.deps.Params, actions)

	contentID, err := b.deps.Reports.Put(ctx, report)
	if err != nil {
		b.log.Warn("写入调仓快照失败", slog.Any("error", err))
		return
	}
	b.log.Info("调仓快照已存储", slog.String("content_id", contentID))
}
