package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "RebalanceChain/internal/errors"
)

// mockDexABI 覆盖组合合约中本工作流用到的两个方法。
const mockDexABI = `[
	{
		"name": "getBalance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "token", "type": "string"}
		],
		"outputs": [
			{"name": "balance", "type": "uint256"}
		]
	},
	{
		"name": "adjustBalance",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "token", "type": "string"},
			{"name": "newBalance", "type": "uint256"}
		],
		"outputs": []
	}
]`

// MockDex 访问按代币符号记账的组合合约。
type MockDex struct {
	caller  Caller
	address common.Address
	abi     abi.ABI
}

// NewMockDex 创建组合合约访问器。
func NewMockDex(caller Caller, address common.Address) (*MockDex, error) {
	parsed, err := abi.JSON(strings.NewReader(mockDexABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析组合合约 ABI 失败")
	}
	return &MockDex{caller: caller, address: address, abi: parsed}, nil
}

// Address 返回合约地址。
func (d *MockDex) Address() common.Address {
	return d.address
}

// GetBalance 读取用户在合约中某个代币的余额。
func (d *MockDex) GetBalance(ctx context.Context, user common.Address, token string) (*big.Int, error) {
	input, err := d.abi.Pack("getBalance", user, token)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "编码 getBalance 调用失败")
	}

	output, err := d.caller.CallContract(ctx, ethereum.CallMsg{To: &d.address, Data: input}, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err,
			fmt.Sprintf("查询代币 %s 余额失败", token))
	}

	results, err := d.abi.Unpack("getBalance", output)
	if err != nil || len(results) == 0 {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "解码 getBalance 返回值失败")
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, xerrors.New(xerrors.CodeChainFailure, "getBalance 返回值类型不符")
	}
	return balance, nil
}

// AdjustBalanceData 编码把用户某个代币余额调整到目标值的调用数据，
// 作为 multisend 批次中的一笔子交易。
func (d *MockDex) AdjustBalanceData(user common.Address, token string, newBalance *big.Int) ([]byte, error) {
	if newBalance == nil || newBalance.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeChainFailure, "目标余额必须为非负整数")
	}
	input, err := d.abi.Pack("adjustBalance", user, token, newBalance)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "编码 adjustBalance 调用失败")
	}
	return input, nil
}
