package chain

import (
	"context"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "RebalanceChain/internal/errors"
)

const oracleABI = `[
	{
		"name": "latestAnswer",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [
			{"name": "answer", "type": "int256"}
		]
	}
]`

// 预言机报价固定 8 位小数。
var oracleDivisor = big.NewFloat(1e8)

// Oracle 读取链上价格预言机的最新报价。
type Oracle struct {
	caller  Caller
	address common.Address
	abi     abi.ABI
}

// NewOracle 创建预言机访问器。
func NewOracle(caller Caller, address common.Address) (*Oracle, error) {
	parsed, err := abi.JSON(strings.NewReader(oracleABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析预言机 ABI 失败")
	}
	return &Oracle{caller: caller, address: address, abi: parsed}, nil
}

// LatestAnswer 返回换算为美元的最新报价。
func (o *Oracle) LatestAnswer(ctx context.Context) (float64, error) {
	input, err := o.abi.Pack("latestAnswer")
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeChainFailure, err, "编码 latestAnswer 调用失败")
	}

	output, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &o.address, Data: input}, nil)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询预言机报价失败")
	}

	results, err := o.abi.Unpack("latestAnswer", output)
	if err != nil || len(results) == 0 {
		return 0, xerrors.Wrap(xerrors.CodeChainFailure, err, "解码 latestAnswer 返回值失败")
	}
	answer, ok := results[0].(*big.Int)
	if !ok {
		return 0, xerrors.New(xerrors.CodeChainFailure, "latestAnswer 返回值类型不符")
	}

	price := new(big.Float).SetInt(answer)
	price.Quo(price, oracleDivisor)
	out, _ := price.Float64()
	return out, nil
}
