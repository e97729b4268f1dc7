package consensus

// Event 是一个回合结束后产生的符号化结果，驱动状态机流转。
type Event string

const (
	EventDone          Event = "done"
	EventError         Event = "error"
	EventTransact      Event = "transact"
	EventNoMajority    Event = "no_majority"
	EventRoundTimeout  Event = "round_timeout"
	EventCoingecko     Event = "coingecko"
	EventCoinMarketCap Event = "coinmarketcap"
)

// EventNone 表示回合尚未得出结果。
const EventNone Event = ""

// RoundID 标识工作流中的一个回合类型。
type RoundID string

const (
	RoundApiSelection           RoundID = "api_selection_round"
	RoundDataPull               RoundID = "data_pull_round"
	RoundAlternativeDataPull    RoundID = "alternative_data_pull_round"
	RoundDecisionMaking         RoundID = "decision_making_round"
	RoundTxPreparation          RoundID = "tx_preparation_round"
	RoundFinishedDecisionMaking RoundID = "finished_decision_making_round"
	RoundFinishedTxPreparation  RoundID = "finished_tx_preparation_round"
)
