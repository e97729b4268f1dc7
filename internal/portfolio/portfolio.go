// Package portfolio 实现再平衡决策的纯计算部分：
// 组合估值、偏离检测与目标持仓量计算。
// 本包不做任何 IO，链上与价格源的读取由调用方完成。
package portfolio

import (
	"fmt"
	"log/slog"
	"math"

	xerrors "RebalanceChain/internal/errors"
	"RebalanceChain/pkg/logger"
)

// Params 是再平衡策略参数。Tokens 与 TargetPercentages 按下标对应。
type Params struct {
	Tokens            []string  `json:"tokens"`
	TargetPercentages []float64 `json:"target_percentages"`
	// Threshold 是触发调仓的偏离百分比阈值。
	Threshold float64 `json:"threshold"`
}

// Validate 校验策略参数。任何违反都是启动期致命错误，
// 不允许进入工作流后才暴露。
func (p Params) Validate() error {
	if len(p.Tokens) == 0 {
		return xerrors.New(xerrors.CodeConfigInvalid, "再平衡代币列表不能为空")
	}
	if len(p.Tokens) != len(p.TargetPercentages) {
		return xerrors.New(xerrors.CodeConfigInvalid,
			fmt.Sprintf("代币数量与目标占比数量不一致: %d != %d",
				len(p.Tokens), len(p.TargetPercentages)))
	}
	sum := 0.0
	for _, pct := range p.TargetPercentages {
		if pct < 0 {
			return xerrors.New(xerrors.CodeConfigInvalid, "目标占比不能为负")
		}
		sum += pct
	}
	if math.Abs(sum-100) > 1e-9 {
		return xerrors.New(xerrors.CodeConfigInvalid,
			fmt.Sprintf("目标占比之和必须为 100, 实际 %.6f", sum))
	}
	if p.Threshold < 0 || p.Threshold > 100 {
		return xerrors.New(xerrors.CodeConfigInvalid,
			fmt.Sprintf("偏离阈值必须在 [0, 100] 内, 实际 %.6f", p.Threshold))
	}
	return nil
}

// TargetOf 返回代币的目标占比。
func (p Params) TargetOf(token string) (float64, bool) {
	for i, t := range p.Tokens {
		if t == token {
			return p.TargetPercentages[i], true
		}
	}
	return 0, false
}

// CalculateAllocation 计算各代币的美元价值与组合总价值。
// 余额或价格缺失的代币跳过并记录日志，不计入总值；
// 余额为零但价格可得的代币按价值 0 计入。
// 没有任何代币同时具备余额和价格时返回空组合错误。
func CalculateAllocation(balances, prices map[string]float64) (map[string]float64, float64, error) {
	log := logger.Named("portfolio")

	values := make(map[string]float64, len(balances))
	seen := false
	total := 0.0
	for token, balance := range balances {
		price, ok := prices[token]
		if !ok {
			log.Warn("代币缺少价格, 跳过估值", slog.String("token", token))
			continue
		}
		value := balance * price
		values[token] = value
		total += value
		seen = true
	}
	if !seen || total == 0 {
		return nil, 0, xerrors.New(xerrors.CodeEmptyPortfolio, "组合总价值为零, 无法估值")
	}
	return values, total, nil
}

// CalculateRebalancingActions 计算需要调仓的代币及其目标持仓量。
// 偏离在阈值以内的代币不出现在结果中；结果为空表示无需交易。
func CalculateRebalancingActions(
	tokenValues map[string]float64,
	total float64,
	params Params,
	prices map[string]float64,
) map[string]float64 {
	log := logger.Named("portfolio")

	actions := make(map[string]float64)
	for i, token := range params.Tokens {
		value, ok := tokenValues[token]
		if !ok {
			log.Warn("代币未参与估值, 跳过偏离检测", slog.String("token", token))
			continue
		}
		targetPct := params.TargetPercentages[i]
		targetValue := targetPct / 100 * total
		if targetValue == 0 {
			continue
		}
		deviation := (value - targetValue) / targetValue * 100
		if math.Abs(deviation) <= params.Threshold {
			continue
		}
		price, ok := prices[token]
		if !ok || price == 0 {
			log.Warn("代币缺少价格, 无法计算目标持仓量", slog.String("token", token))
			continue
		}
		actions[token] = targetValue / price
		log.Info("检测到偏离超阈值",
			slog.String("token", token),
			slog.Float64("deviation_pct", deviation),
			slog.Float64("target_amount", actions[token]),
		)
	}
	return actions
}
