package consensus

import (
	"encoding/json"
	"fmt"
)

// Payload 是某个参与方针对当前回合提交的不可变提案。
// ValueKey 返回参与法定人数统计的业务字段的确定性序列化，
// 发送者身份不参与分类。
type Payload interface {
	Sender() string
	Kind() string
	ValueKey() string
}

const (
	KindApiSelection  = "api_selection"
	KindDataPull      = "data_pull"
	KindDecision      = "decision"
	KindTxPreparation = "tx_preparation"
)

func mustKey(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		// 载荷只含基础类型，序列化不应失败。
		panic(fmt.Sprintf("marshal payload value: %v", err))
	}
	return string(raw)
}

// ApiSelectionPayload 携带该参与方建议使用的价格源标识。
type ApiSelectionPayload struct {
	AgentID      string `json:"sender"`
	ApiSelection string `json:"api_selection"`
}

func (p ApiSelectionPayload) Sender() string { return p.AgentID }
func (p ApiSelectionPayload) Kind() string   { return KindApiSelection }

func (p ApiSelectionPayload) ValueKey() string {
	return mustKey(struct {
		ApiSelection string `json:"api_selection"`
	}{p.ApiSelection})
}

// DataPullPayload 携带序列化的代币估值映射与组合总价值。
// TokenValues 为空表示本方未能完成估值。
type DataPullPayload struct {
	AgentID             string  `json:"sender"`
	TokenValues         *string `json:"token_values"`
	TotalPortfolioValue float64 `json:"total_portfolio_value"`
}

func (p DataPullPayload) Sender() string { return p.AgentID }
func (p DataPullPayload) Kind() string   { return KindDataPull }

func (p DataPullPayload) ValueKey() string {
	return mustKey(struct {
		TokenValues         *string `json:"token_values"`
		TotalPortfolioValue float64 `json:"total_portfolio_value"`
	}{p.TokenValues, p.TotalPortfolioValue})
}

// DecisionPayload 携带决策事件名与可选的序列化调仓映射。
type DecisionPayload struct {
	AgentID            string  `json:"sender"`
	Event              string  `json:"event"`
	AdjustmentBalances *string `json:"adjustment_balances"`
}

func (p DecisionPayload) Sender() string { return p.AgentID }
func (p DecisionPayload) Kind() string   { return KindDecision }

func (p DecisionPayload) ValueKey() string {
	return mustKey(struct {
		Event              string  `json:"event"`
		AdjustmentBalances *string `json:"adjustment_balances"`
	}{p.Event, p.AdjustmentBalances})
}

// TxPreparationPayload 携带产出交易的子行为标识与计算出的交易哈希。
type TxPreparationPayload struct {
	AgentID     string  `json:"sender"`
	TxSubmitter string  `json:"tx_submitter"`
	TxHash      *string `json:"tx_hash"`
}

func (p TxPreparationPayload) Sender() string { return p.AgentID }
func (p TxPreparationPayload) Kind() string   { return KindTxPreparation }

func (p TxPreparationPayload) ValueKey() string {
	return mustKey(struct {
		TxSubmitter string  `json:"tx_submitter"`
		TxHash      *string `json:"tx_hash"`
	}{p.TxSubmitter, p.TxHash})
}

// Envelope 是载荷在复制传输层上的线格式。
type Envelope struct {
	Round  RoundID         `json:"round"`
	Kind   string          `json:"kind"`
	Sender string          `json:"sender"`
	Body   json.RawMessage `json:"body"`
}

// Seal 将载荷封装为可广播的信封。
func Seal(round RoundID, p Payload) (Envelope, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("序列化载荷失败: %w", err)
	}
	return Envelope{Round: round, Kind: p.Kind(), Sender: p.Sender(), Body: body}, nil
}

// Open 根据信封中的载荷类型还原具体载荷。
func Open(env Envelope) (Payload, error) {
	switch env.Kind {
	case KindApiSelection:
		var p ApiSelectionPayload
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return nil, fmt.Errorf("解析 api_selection 载荷失败: %w", err)
		}
		return p, nil
	case KindDataPull:
		var p DataPullPayload
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return nil, fmt.Errorf("解析 data_pull 载荷失败: %w", err)
		}
		return p, nil
	case KindDecision:
		var p DecisionPayload
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return nil, fmt.Errorf("解析 decision 载荷失败: %w", err)
		}
		return p, nil
	case KindTxPreparation:
		var p TxPreparationPayload
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return nil, fmt.Errorf("解析 tx_preparation 载荷失败: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("未知的载荷类型: %s", env.Kind)
	}
}
