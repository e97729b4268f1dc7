// Package behaviours 实现每个回合对应的提案行为：
// 从协作方（价格源、链上合约、报告存储）取数、计算业务载荷,
// 经广播通道提交给所有参与方。协作方失败只意味着本方
// 提不出可用值，绝不中断进程；回合超时后会重试。
package behaviours

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"RebalanceChain/internal/consensus"
	"RebalanceChain/internal/feeds"
	"RebalanceChain/internal/portfolio"
	"RebalanceChain/internal/reports"
)

// BalanceReader 读取组合合约中某个代币的余额。
type BalanceReader interface {
	GetBalance(ctx context.Context, user common.Address, token string) (*big.Int, error)
}

// AdjustEncoder 编码调仓子交易的调用数据。
type AdjustEncoder interface {
	Address() common.Address
	AdjustBalanceData(user common.Address, token string, newBalance *big.Int) ([]byte, error)
}

// SafeHasher 计算多签交易摘要。
type SafeHasher interface {
	Address() common.Address
	Nonce(ctx context.Context) (*big.Int, error)
	TransactionHash(ctx context.Context, to common.Address, value *big.Int, data []byte, operation byte, nonce *big.Int) (common.Hash, error)
}

// Behaviour 为某个回合计算本方的提案载荷。
type Behaviour interface {
	RoundID() consensus.RoundID
	Act(ctx context.Context, data *consensus.SynchronizedData) (consensus.Payload, error)
}

// Deps 汇集全部行为共享的协作方。
type Deps struct {
	AgentID string
	Params  portfolio.Params
	// ApiPreference 是本方在价格源协商回合中的提案。
	ApiPreference string

	// PriceSources 按协商标识索引价格源客户端。
	PriceSources map[string]feeds.PriceSource
	Balances     BalanceReader
	// PortfolioUser 是在组合合约中记账的用户地址。
	PortfolioUser common.Address

	Dex       AdjustEncoder
	Safe      SafeHasher
	Multisend common.Address

	Reports reports.Store
}

// priceSource 按同步状态中的协商结果挑选价格源。
func (d Deps) priceSource(data *consensus.SynchronizedData) (feeds.PriceSource, bool) {
	source, ok := d.PriceSources[data.ApiSelection()]
	return source, ok
}
