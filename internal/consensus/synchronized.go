package consensus

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// 同步状态中约定的键名。一旦某个键在回合提交中被写入，
// 所有节点都会持有完全一致的值。
const (
	KeyTokenValues          = "token_values"
	KeyTotalPortfolioValue  = "total_portfolio_value"
	KeyAdjustmentBalances   = "adjustment_balances"
	KeyApiSelection         = "api_selection"
	KeyTxSubmitter          = "tx_submitter"
	KeyMostVotedTxHash      = "most_voted_tx_hash"
	KeyParticipantsData     = "participant_to_data_round"
	KeyParticipantsDecision = "participant_to_decision_making_round"
	KeyParticipantsTx       = "participant_to_tx_round"
)

// DefaultApiSelection 是未经协商时的默认价格源。
const DefaultApiSelection = "coingecko"

// SynchronizedData 是所有参与方字节一致的追加式键值状态。
// 每次更新产生新的逻辑版本，旧版本不会被原地修改；
// 只有状态机的回合提交路径会调用 Update。
type SynchronizedData struct {
	db map[string]any
}

// NewSynchronizedData 创建空状态，可传入跨轮次保留的初始键值。
func NewSynchronizedData(seed map[string]any) *SynchronizedData {
	db := make(map[string]any, len(seed))
	for k, v := range seed {
		db[k] = v
	}
	return &SynchronizedData{db: db}
}

// Update 返回在当前版本之上叠加给定键值的新版本。
func (s *SynchronizedData) Update(kv map[string]any) *SynchronizedData {
	next := make(map[string]any, len(s.db)+len(kv))
	for k, v := range s.db {
		next[k] = v
	}
	for k, v := range kv {
		next[k] = v
	}
	return &SynchronizedData{db: next}
}

// Get 返回键对应的值。
func (s *SynchronizedData) Get(key string) (any, bool) {
	v, ok := s.db[key]
	return v, ok
}

// GetStrict 返回键对应的值，缺失视为错误。
func (s *SynchronizedData) GetStrict(key string) (any, error) {
	v, ok := s.db[key]
	if !ok {
		return nil, fmt.Errorf("同步状态缺少键 %q", key)
	}
	return v, nil
}

func (s *SynchronizedData) getString(key string) (string, bool) {
	v, ok := s.db[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// ApiSelection 返回当前协商的价格源，未设置时返回默认值。
func (s *SynchronizedData) ApiSelection() string {
	if v, ok := s.getString(KeyApiSelection); ok {
		return v
	}
	return DefaultApiSelection
}

// TokenValues 返回序列化的代币估值映射。
func (s *SynchronizedData) TokenValues() (string, bool) {
	return s.getString(KeyTokenValues)
}

// TotalPortfolioValue 返回组合总价值。
func (s *SynchronizedData) TotalPortfolioValue() (float64, bool) {
	v, ok := s.db[KeyTotalPortfolioValue]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// AdjustmentBalances 返回序列化的调仓映射。
func (s *SynchronizedData) AdjustmentBalances() (string, bool) {
	return s.getString(KeyAdjustmentBalances)
}

// TxSubmitter 返回产出交易哈希的子行为标识。
func (s *SynchronizedData) TxSubmitter() (string, bool) {
	return s.getString(KeyTxSubmitter)
}

// MostVotedTxHash 返回达成共识的交易哈希。
func (s *SynchronizedData) MostVotedTxHash() (string, bool) {
	return s.getString(KeyMostVotedTxHash)
}

// Subset 抽取给定键的当前值，用于跨轮次保留。
// 本工作流的保留键集合为空，机制保留给配置方。
func (s *SynchronizedData) Subset(keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.db[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Serialize 输出键有序的 JSON，用于跨节点一致性比对。
func (s *SynchronizedData) Serialize() ([]byte, error) {
	keys := make([]string, 0, len(s.db))
	for k := range s.db {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(keys))
	for _, k := range keys {
		ordered[k] = s.db[k]
	}
	// encoding/json 对 map 键排序输出，结果确定。
	return json.Marshal(ordered)
}

// Hash 返回序列化状态的 keccak256 摘要，便于在日志与
// 回合日志中廉价比对各节点状态是否一致。
func (s *SynchronizedData) Hash() string {
	raw, err := s.Serialize()
	if err != nil {
		return ""
	}
	return hexutil.Encode(crypto.Keccak256(raw))
}

// Len 返回当前已提交的键数量。
func (s *SynchronizedData) Len() int {
	return len(s.db)
}
