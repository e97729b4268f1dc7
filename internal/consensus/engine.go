package consensus

import (
	"fmt"
	"log/slog"
	"time"

	xerrors "RebalanceChain/internal/errors"
	"RebalanceChain/pkg/logger"
)

// TransitionTable 把 (回合, 事件) 映射到下一个回合。
// 终止回合的条目为空。
type TransitionTable map[RoundID]map[Event]RoundID

// declaredEvents 列出每个回合在运行期可能产生的全部事件。
// 表校验据此穷举，缺失条目是定义期的致命配置错误。
var declaredEvents = map[RoundID][]Event{
	RoundApiSelection: {
		EventCoingecko, EventCoinMarketCap, EventNoMajority, EventRoundTimeout,
	},
	RoundDataPull: {
		EventDone, EventNoMajority, EventRoundTimeout,
	},
	RoundAlternativeDataPull: {
		EventDone, EventNoMajority, EventRoundTimeout,
	},
	RoundDecisionMaking: {
		EventDone, EventError, EventTransact, EventNoMajority, EventRoundTimeout,
	},
	RoundTxPreparation: {
		EventDone, EventNoMajority, EventRoundTimeout,
	},
	RoundFinishedDecisionMaking: {},
	RoundFinishedTxPreparation:  {},
}

// DefaultTransitions 返回再平衡工作流的状态转移表。
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		RoundApiSelection: {
			EventCoingecko:     RoundDataPull,
			EventCoinMarketCap: RoundAlternativeDataPull,
			EventNoMajority:    RoundApiSelection,
			EventRoundTimeout:  RoundApiSelection,
		},
		RoundDataPull: {
			EventDone:         RoundDecisionMaking,
			EventNoMajority:   RoundDataPull,
			EventRoundTimeout: RoundDataPull,
		},
		RoundAlternativeDataPull: {
			EventDone:         RoundDecisionMaking,
			EventNoMajority:   RoundAlternativeDataPull,
			EventRoundTimeout: RoundAlternativeDataPull,
		},
		RoundDecisionMaking: {
			EventDone:         RoundFinishedDecisionMaking,
			EventError:        RoundFinishedDecisionMaking,
			EventTransact:     RoundTxPreparation,
			EventNoMajority:   RoundDecisionMaking,
			EventRoundTimeout: RoundDecisionMaking,
		},
		RoundTxPreparation: {
			EventDone:         RoundFinishedTxPreparation,
			EventNoMajority:   RoundTxPreparation,
			EventRoundTimeout: RoundTxPreparation,
		},
		RoundFinishedDecisionMaking: {},
		RoundFinishedTxPreparation:  {},
	}
}

// TerminalRounds 返回工作流的终止回合集合。
func TerminalRounds() map[RoundID]bool {
	return map[RoundID]bool{
		RoundFinishedDecisionMaking: true,
		RoundFinishedTxPreparation:  true,
	}
}

// ValidateTransitions 校验转移表对每个回合声明的事件集合是否穷举。
// 任何缺失都必须在工作流定义期暴露，而不是运行期。
func ValidateTransitions(table TransitionTable) error {
	for round, events := range declaredEvents {
		entries, ok := table[round]
		if !ok {
			return xerrors.New(xerrors.CodeConfigInvalid,
				fmt.Sprintf("转移表缺少回合 %s", round))
		}
		for _, ev := range events {
			if _, ok := entries[ev]; !ok {
				return xerrors.New(xerrors.CodeConfigInvalid,
					fmt.Sprintf("转移表缺少条目 (%s, %s)", round, ev))
			}
		}
	}
	for round := range table {
		if _, ok := declaredEvents[round]; !ok {
			return xerrors.New(xerrors.CodeConfigInvalid,
				fmt.Sprintf("转移表包含未声明的回合 %s", round))
		}
	}
	return nil
}

// EngineConfig 描述构建工作流引擎所需的参数。
type EngineConfig struct {
	NbParticipants int
	RoundTimeout   time.Duration
	// PersistedKeys 是跨轮次保留的同步状态键集合，本工作流为空。
	PersistedKeys []string
	// Seed 是来自上一轮运行的保留键值。
	Seed map[string]any
}

// Transition 记录一次已应用的状态流转。
type Transition struct {
	From      RoundID
	Event     Event
	To        RoundID
	StateHash string
	Payloads  int
}

// Engine 驱动回合制工作流：任一时刻只有一个活跃回合，
// 每次 EndBlock 得出结果后恰好应用一次转移。
type Engine struct {
	table    TransitionTable
	terminal map[RoundID]bool
	cfg      EngineConfig

	current  Round
	data     *SynchronizedData
	deadline time.Time
	log      *slog.Logger
}

// NewEngine 构建并校验工作流引擎，初始回合为价格源协商。
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.NbParticipants <= 0 {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "参与方数量必须为正")
	}
	if cfg.RoundTimeout <= 0 {
		cfg.RoundTimeout = 30 * time.Second
	}
	table := DefaultTransitions()
	if err := ValidateTransitions(table); err != nil {
		return nil, err
	}

	e := &Engine{
		table:    table,
		terminal: TerminalRounds(),
		cfg:      cfg,
		data:     NewSynchronizedData(cfg.Seed),
		log:      logger.Named("engine"),
	}
	e.enter(RoundApiSelection, time.Now())
	return e, nil
}

// newRound 按标识实例化回合。
func (e *Engine) newRound(id RoundID) Round {
	n := e.cfg.NbParticipants
	switch id {
	case RoundApiSelection:
		return NewApiSelectionRound(e.data, n)
	case RoundDataPull:
		return NewDataPullRound(e.data, n)
	case RoundAlternativeDataPull:
		return NewAlternativeDataPullRound(e.data, n)
	case RoundDecisionMaking:
		return NewDecisionMakingRound(e.data, n)
	case RoundTxPreparation:
		return NewTxPreparationRound(e.data, n)
	case RoundFinishedDecisionMaking, RoundFinishedTxPreparation:
		return &finishedRound{id: id, data: e.data}
	default:
		// 转移表已在构建期校验，不应到达这里。
		panic(fmt.Sprintf("未知回合: %s", id))
	}
}

func (e *Engine) enter(id RoundID, now time.Time) {
	e.current = e.newRound(id)
	e.deadline = now.Add(e.cfg.RoundTimeout)
}

// CurrentRound 返回当前活跃回合的标识。
func (e *Engine) CurrentRound() RoundID {
	return e.current.ID()
}

// Data 返回当前同步状态版本。
func (e *Engine) Data() *SynchronizedData {
	return e.data
}

// Done 判断工作流是否已到达终止回合。
func (e *Engine) Done() bool {
	return e.terminal[e.current.ID()]
}

// Deliver 把一条载荷投递给当前回合。回合不匹配的载荷直接丢弃：
// 这是慢节点迟到的上一回合提案，不构成错误。
func (e *Engine) Deliver(env Envelope) error {
	if e.Done() {
		return nil
	}
	if env.Round != e.current.ID() {
		e.log.Debug("丢弃非当前回合的载荷",
			slog.String("round", string(env.Round)),
			slog.String("current", string(e.current.ID())),
			slog.String("sender", env.Sender),
		)
		return nil
	}
	payload, err := Open(env)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "载荷解码失败")
	}
	return e.current.Deliver(payload)
}

// Tick 推进状态机：先检查回合是否得出结果，未得出时检查超时。
// 发生流转时返回转移记录。
func (e *Engine) Tick(now time.Time) (Transition, bool) {
	if e.Done() {
		return Transition{}, false
	}

	from := e.current.ID()
	collected := 0
	if br, ok := e.current.(interface{ Collector() *Collector }); ok {
		collected = br.Collector().Count()
	}

	data, event := e.current.EndBlock()
	if event == EventNone {
		if now.Before(e.deadline) {
			return Transition{}, false
		}
		// 超时重启本回合的数据收集，属于有界重试而非失败。
		data, event = e.data, EventRoundTimeout
	}

	next, ok := e.table[from][event]
	if !ok {
		// 构建期已穷举校验，运行期缺失视为致命缺陷。
		panic(fmt.Sprintf("转移表缺少条目 (%s, %s)", from, event))
	}

	if data != nil {
		e.data = data
	}
	e.enter(next, now)

	t := Transition{
		From:      from,
		Event:     event,
		To:        next,
		StateHash: e.data.Hash(),
		Payloads:  collected,
	}
	e.log.Info("回合流转",
		slog.String("from", string(from)),
		slog.String("event", string(event)),
		slog.String("to", string(next)),
		slog.String("state_hash", t.StateHash),
	)
	return t, true
}

// PersistedSubset 返回本轮运行结束后应跨轮次保留的键值。
func (e *Engine) PersistedSubset() map[string]any {
	return e.data.Subset(e.cfg.PersistedKeys)
}
