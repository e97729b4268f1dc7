package consensus

import (
	"encoding/json"
	"fmt"
	"sort"

	xerrors "RebalanceChain/internal/errors"
)

// Quorum 返回 n 个参与方下的法定人数：严格超过三分之二，
// 即拜占庭容错下 n 容忍 ⌊(n-1)/3⌋ 个故障节点所需的票数。
func Quorum(n int) int {
	return 2*n/3 + 1
}

// Collector 为当前回合收集各参与方的载荷。
// 同一发送者重复提交会替换其先前的载荷，而不是累加。
// 进入新回合时由状态机重建，收集内容不跨回合保留。
type Collector struct {
	nbParticipants int
	kind           string
	payloads       map[string]Payload
}

// NewCollector 创建面向 kind 类型载荷、共 n 个参与方的收集器。
func NewCollector(kind string, nbParticipants int) *Collector {
	return &Collector{
		nbParticipants: nbParticipants,
		kind:           kind,
		payloads:       make(map[string]Payload),
	}
}

// Submit 记录或替换某个参与方的载荷。
func (c *Collector) Submit(p Payload) error {
	if p == nil {
		return xerrors.New(xerrors.CodeConsensusMismatch, "载荷不能为空")
	}
	if p.Kind() != c.kind {
		return xerrors.New(xerrors.CodeConsensusMismatch,
			fmt.Sprintf("载荷类型不匹配: 期望 %s, 收到 %s", c.kind, p.Kind()))
	}
	if p.Sender() == "" {
		return xerrors.New(xerrors.CodeConsensusMismatch, "载荷缺少发送者")
	}
	c.payloads[p.Sender()] = p
	return nil
}

// Count 返回已提交载荷的参与方数量。
func (c *Collector) Count() int {
	return len(c.payloads)
}

// counts 按业务值分类统计票数。
func (c *Collector) counts() map[string]int {
	counts := make(map[string]int)
	for _, p := range c.payloads {
		counts[p.ValueKey()]++
	}
	return counts
}

// ThresholdReached 判断是否已有某个业务值达到法定人数。
func (c *Collector) ThresholdReached() bool {
	threshold := Quorum(c.nbParticipants)
	for _, n := range c.counts() {
		if n >= threshold {
			return true
		}
	}
	return false
}

// MostVotedPayload 返回达到法定人数的载荷值。
// 未达法定人数时返回错误，调用方必须先确认 ThresholdReached。
// 同类载荷中按发送者字典序取第一个，保证各节点结果一致。
func (c *Collector) MostVotedPayload() (Payload, error) {
	threshold := Quorum(c.nbParticipants)
	counts := c.counts()

	var winner string
	for key, n := range counts {
		if n >= threshold {
			winner = key
			break
		}
	}
	if winner == "" {
		return nil, xerrors.New(xerrors.CodeNoQuorum, "尚无载荷达到法定人数")
	}

	senders := make([]string, 0, len(c.payloads))
	for sender, p := range c.payloads {
		if p.ValueKey() == winner {
			senders = append(senders, sender)
		}
	}
	sort.Strings(senders)
	return c.payloads[senders[0]], nil
}

// MajorityPossible 判断在剩余参与方全部投给当前最大类的假设下，
// 是否仍有可能达到法定人数。返回 false 时回合应立即以
// NO_MAJORITY 结束，而不是等待超时。
func (c *Collector) MajorityPossible() bool {
	threshold := Quorum(c.nbParticipants)
	remaining := c.nbParticipants - len(c.payloads)

	max := 0
	for _, n := range c.counts() {
		if n > max {
			max = n
		}
	}
	return max+remaining >= threshold
}

// Serialize 输出发送者有序的收集内容，作为回合的原始
// participant_to_* 记录投影进同步状态。
func (c *Collector) Serialize() (string, error) {
	ordered := make(map[string]json.RawMessage, len(c.payloads))
	for sender, p := range c.payloads {
		raw, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("序列化收集内容失败: %w", err)
		}
		ordered[sender] = raw
	}
	out, err := json.Marshal(ordered)
	if err != nil {
		return "", fmt.Errorf("序列化收集内容失败: %w", err)
	}
	return string(out), nil
}

// SortedPayloads 按发送者字典序返回全部载荷。
func (c *Collector) SortedPayloads() []Payload {
	senders := make([]string, 0, len(c.payloads))
	for sender := range c.payloads {
		senders = append(senders, sender)
	}
	sort.Strings(senders)

	out := make([]Payload, 0, len(senders))
	for _, sender := range senders {
		out = append(out, c.payloads[sender])
	}
	return out
}
