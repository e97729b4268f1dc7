package consensus

import (
	"log/slog"

	"RebalanceChain/pkg/logger"
)

// Round 是状态机的一个节点。每次进入回合时重新实例化，
// 随回合流转销毁。EndBlock 在未得出结果时返回 (nil, EventNone)，
// 调用方应在下一次投递或滴答后重试。
type Round interface {
	ID() RoundID
	PayloadKind() string
	Deliver(p Payload) error
	EndBlock() (*SynchronizedData, Event)
}

type baseRound struct {
	id        RoundID
	collector *Collector
	data      *SynchronizedData
	log       *slog.Logger
}

func newBaseRound(id RoundID, kind string, data *SynchronizedData, nbParticipants int) baseRound {
	return baseRound{
		id:        id,
		collector: NewCollector(kind, nbParticipants),
		data:      data,
		log:       logger.Named("rounds"),
	}
}

func (r *baseRound) ID() RoundID             { return r.id }
func (r *baseRound) PayloadKind() string     { return r.collector.kind }
func (r *baseRound) Deliver(p Payload) error { return r.collector.Submit(p) }
func (r *baseRound) Collector() *Collector   { return r.collector }
func (r *baseRound) Data() *SynchronizedData { return r.data }

// ApiSelectionRound 就本轮使用哪个价格源达成一致。
// 若协商结果与当前记录不同则更新并发出新选择对应的分支事件，
// 否则发出原选择对应的分支事件。
type ApiSelectionRound struct {
	baseRound
}

// NewApiSelectionRound 创建价格源协商回合。
func NewApiSelectionRound(data *SynchronizedData, nbParticipants int) *ApiSelectionRound {
	return &ApiSelectionRound{newBaseRound(RoundApiSelection, KindApiSelection, data, nbParticipants)}
}

// EndBlock 处理回合结束。
func (r *ApiSelectionRound) EndBlock() (*SynchronizedData, Event) {
	if r.collector.ThresholdReached() {
		winner, err := r.collector.MostVotedPayload()
		if err != nil {
			return nil, EventNone
		}
		selection := winner.(ApiSelectionPayload).ApiSelection
		if r.data.ApiSelection() != selection {
			updated := r.data.Update(map[string]any{KeyApiSelection: selection})
			return updated, EventCoinMarketCap
		}
		return r.data, EventCoingecko
	}
	if !r.collector.MajorityPossible() {
		return r.data, EventNoMajority
	}
	return nil, EventNone
}

// DataPullRound 收集各参与方独立完成的组合估值。
// 两条数据拉取路径（Coingecko 与 CoinMarketCap）共用同一实现，
// 仅回合标识不同。
type DataPullRound struct {
	baseRound
}

// NewDataPullRound 创建主数据拉取回合。
func NewDataPullRound(data *SynchronizedData, nbParticipants int) *DataPullRound {
	return &DataPullRound{newBaseRound(RoundDataPull, KindDataPull, data, nbParticipants)}
}

// NewAlternativeDataPullRound 创建备选数据源的数据拉取回合。
func NewAlternativeDataPullRound(data *SynchronizedData, nbParticipants int) *DataPullRound {
	return &DataPullRound{newBaseRound(RoundAlternativeDataPull, KindDataPull, data, nbParticipants)}
}

// EndBlock 处理回合结束。
func (r *DataPullRound) EndBlock() (*SynchronizedData, Event) {
	if r.collector.ThresholdReached() {
		winner, err := r.collector.MostVotedPayload()
		if err != nil {
			return nil, EventNone
		}
		payload := winner.(DataPullPayload)

		collection, err := r.collector.Serialize()
		if err != nil {
			r.log.Error("序列化收集内容失败", slog.Any("error", err))
			collection = "{}"
		}

		update := map[string]any{
			KeyTotalPortfolioValue: payload.TotalPortfolioValue,
			KeyParticipantsData:    collection,
		}
		if payload.TokenValues != nil {
			update[KeyTokenValues] = *payload.TokenValues
		}
		return r.data.Update(update), EventDone
	}
	if !r.collector.MajorityPossible() {
		return r.data, EventNoMajority
	}
	return nil, EventNone
}

// DecisionMakingRound 就是否需要调仓达成一致。
type DecisionMakingRound struct {
	baseRound
}

// NewDecisionMakingRound 创建决策回合。
func NewDecisionMakingRound(data *SynchronizedData, nbParticipants int) *DecisionMakingRound {
	return &DecisionMakingRound{newBaseRound(RoundDecisionMaking, KindDecision, data, nbParticipants)}
}

// EndBlock 处理回合结束。只在胜出类内部定位事件字段等于胜出
// 事件的载荷：同事件但调仓映射不同的载荷属于别的分类，不得被
// 投影。找不到说明收集与计票出现了分歧，以 ERROR 终止本轮运行。
func (r *DecisionMakingRound) EndBlock() (*SynchronizedData, Event) {
	if r.collector.ThresholdReached() {
		winner, err := r.collector.MostVotedPayload()
		if err != nil {
			return nil, EventNone
		}
		winningEvent := winner.(DecisionPayload).Event
		winningKey := winner.ValueKey()

		var matched *DecisionPayload
		for _, p := range r.collector.SortedPayloads() {
			if p.ValueKey() != winningKey {
				continue
			}
			dp := p.(DecisionPayload)
			if dp.Event == winningEvent {
				matched = &dp
				break
			}
		}
		if matched == nil {
			r.log.Error("在胜出类中未找到匹配事件的载荷", slog.String("event", winningEvent))
			return r.data, EventError
		}

		if matched.AdjustmentBalances == nil {
			r.log.Warn("载荷不含调仓映射，无需交易")
			return r.data, EventDone
		}

		collection, err := r.collector.Serialize()
		if err != nil {
			r.log.Error("序列化收集内容失败", slog.Any("error", err))
			return r.data, EventError
		}
		updated := r.data.Update(map[string]any{
			KeyAdjustmentBalances:   *matched.AdjustmentBalances,
			KeyParticipantsDecision: collection,
		})
		return updated, EventTransact
	}
	if !r.collector.MajorityPossible() {
		return r.data, EventNoMajority
	}
	return nil, EventNone
}

// TxPreparationRound 就待提交的多签交易哈希达成一致。
type TxPreparationRound struct {
	baseRound
}

// NewTxPreparationRound 创建交易准备回合。
func NewTxPreparationRound(data *SynchronizedData, nbParticipants int) *TxPreparationRound {
	return &TxPreparationRound{newBaseRound(RoundTxPreparation, KindTxPreparation, data, nbParticipants)}
}

// EndBlock 处理回合结束。
func (r *TxPreparationRound) EndBlock() (*SynchronizedData, Event) {
	if r.collector.ThresholdReached() {
		winner, err := r.collector.MostVotedPayload()
		if err != nil {
			return nil, EventNone
		}
		payload := winner.(TxPreparationPayload)

		collection, err := r.collector.Serialize()
		if err != nil {
			r.log.Error("序列化收集内容失败", slog.Any("error", err))
			collection = "{}"
		}

		update := map[string]any{
			KeyTxSubmitter:    payload.TxSubmitter,
			KeyParticipantsTx: collection,
		}
		if payload.TxHash != nil {
			update[KeyMostVotedTxHash] = *payload.TxHash
		}
		return r.data.Update(update), EventDone
	}
	if !r.collector.MajorityPossible() {
		return r.data, EventNoMajority
	}
	return nil, EventNone
}

// finishedRound 是终止回合，不接受载荷也不产生事件。
type finishedRound struct {
	id   RoundID
	data *SynchronizedData
}

func (r *finishedRound) ID() RoundID         { return r.id }
func (r *finishedRound) PayloadKind() string { return "" }

func (r *finishedRound) Deliver(Payload) error {
	return nil
}

func (r *finishedRound) EndBlock() (*SynchronizedData, Event) {
	return nil, EventNone
}
