package behaviours

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"strings"

	"RebalanceChain/internal/chain"
	"RebalanceChain/internal/consensus"
	"RebalanceChain/pkg/logger"
)

// TxSubmitterID 标识产出交易哈希的行为，进入共识载荷。
const TxSubmitterID = "tx_preparation_behaviour"

// TxPreparationBehaviour 把共识后的调仓映射组装为多签交易：
// 逐代币编码 adjustBalance 子交易，打包进 multisend 批次,
// 让多签合约计算摘要，最后编码为完整交易载荷。
type TxPreparationBehaviour struct {
	deps Deps
	log  *slog.Logger
}

// NewTxPreparationBehaviour 创建交易准备行为。
func NewTxPreparationBehaviour(deps Deps) *TxPreparationBehaviour {
	return &TxPreparationBehaviour{deps: deps, log: logger.Named("behaviours")}
}

// RoundID 返回匹配的回合标识。
func (b *TxPreparationBehaviour) RoundID() consensus.RoundID {
	return consensus.RoundTxPreparation
}

// Act 组装交易并提交其载荷哈希。任何环节失败都提交空哈希,
// 不会向同步状态写入任何部分结果。
func (b *TxPreparationBehaviour) Act(ctx context.Context, data *consensus.SynchronizedData) (consensus.Payload, error) {
	empty := consensus.TxPreparationPayload{AgentID: b.deps.AgentID, TxSubmitter: TxSubmitterID}

	encoded, ok := data.AdjustmentBalances()
	if !ok {
		b.log.Error("同步状态缺少调仓映射")
		return empty, nil
	}
	var adjustments map[string]float64
	if err := json.Unmarshal([]byte(encoded), &adjustments); err != nil {
		b.log.Error("解析调仓映射失败", slog.Any("error", err))
		return empty, nil
	}
	if len(adjustments) == 0 {
		b.log.Error("调仓映射为空，无交易可组装")
		return empty, nil
	}

	txHash, err := b.assemble(ctx, adjustments)
	if err != nil {
		b.log.Error("组装多签交易失败", slog.Any("error", err))
		return empty, nil
	}

	return consensus.TxPreparationPayload{
		AgentID:     b.deps.AgentID,
		TxSubmitter: TxSubmitterID,
		TxHash:      &txHash,
	}, nil
}

func (b *TxPreparationBehaviour) assemble(ctx context.Context, adjustments map[string]float64) (string, error) {
	// 代币按名称排序，保证各节点组装出相同的批次。
	tokens := make([]string, 0, len(adjustments))
	for token := range adjustments {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	txs := make([]chain.MultiSendTx, 0, len(tokens))
	for _, token := range tokens {
		target := big.NewInt(int64(math.Round(adjustments[token])))
		callData, err := b.deps.Dex.AdjustBalanceData(b.deps.PortfolioUser, token, target)
		if err != nil {
			return "", err
		}
		txs = append(txs, chain.MultiSendTx{
			Operation: chain.OperationCall,
			To:        b.deps.Dex.Address(),
			Value:     new(big.Int),
			Data:      callData,
		})
	}

	multisendData, err := chain.MultiSendData(txs)
	if err != nil {
		return "", err
	}

	nonce, err := b.deps.Safe.Nonce(ctx)
	if err != nil {
		return "", err
	}

	digest, err := b.deps.Safe.TransactionHash(
		ctx, b.deps.Multisend, new(big.Int), multisendData,
		chain.OperationDelegateCall, nonce,
	)
	if err != nil {
		return "", err
	}

	return chain.HashPayloadToHex(chain.TxPayload{
		SafeTxHash: strings.TrimPrefix(digest.Hex(), "0x"),
		EtherValue: new(big.Int),
		SafeTxGas:  big.NewInt(chain.SafeTxGas),
		To:         b.deps.Multisend,
		Operation:  chain.OperationDelegateCall,
		Data:       multisendData,
	})
}
