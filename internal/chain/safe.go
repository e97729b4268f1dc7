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

// SafeTxGas 是准备多签交易时使用的固定 gas 参数。
const SafeTxGas = 0

const safeABI = `[
	{
		"name": "nonce",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [
			{"name": "", "type": "uint256"}
		]
	},
	{
		"name": "getTransactionHash",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "data", "type": "bytes"},
			{"name": "operation", "type": "uint8"},
			{"name": "safeTxGas", "type": "uint256"},
			{"name": "baseGas", "type": "uint256"},
			{"name": "gasPrice", "type": "uint256"},
			{"name": "gasToken", "type": "address"},
			{"name": "refundReceiver", "type": "address"},
			{"name": "_nonce", "type": "uint256"}
		],
		"outputs": [
			{"name": "", "type": "bytes32"}
		]
	}
]`

// Safe 访问 gnosis 多签合约，只做交易摘要计算，不签名不提交。
type Safe struct {
	caller  Caller
	address common.Address
	abi     abi.ABI
}

// NewSafe 创建多签合约访问器。
func NewSafe(caller Caller, address common.Address) (*Safe, error) {
	parsed, err := abi.JSON(strings.NewReader(safeABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析多签合约 ABI 失败")
	}
	return &Safe{caller: caller, address: address, abi: parsed}, nil
}

// Address 返回多签合约地址。
func (s *Safe) Address() common.Address {
	return s.address
}

// Nonce 读取多签合约的当前 nonce。
func (s *Safe) Nonce(ctx context.Context) (*big.Int, error) {
	input, err := s.abi.Pack("nonce")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "编码 nonce 调用失败")
	}

	output, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.address, Data: input}, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询多签 nonce 失败")
	}

	results, err := s.abi.Unpack("nonce", output)
	if err != nil || len(results) == 0 {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "解码 nonce 返回值失败")
	}
	nonce, ok := results[0].(*big.Int)
	if !ok {
		return nil, xerrors.New(xerrors.CodeChainFailure, "nonce 返回值类型不符")
	}
	return nonce, nil
}

// TransactionHash 让多签合约计算待签交易的摘要。
// gas、退款相关参数固定为零值，与提交路径保持一致。
func (s *Safe) TransactionHash(
	ctx context.Context,
	to common.Address,
	value *big.Int,
	data []byte,
	operation byte,
	nonce *big.Int,
) (common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}
	if nonce == nil {
		return common.Hash{}, xerrors.New(xerrors.CodeChainFailure, "缺少多签 nonce")
	}

	zero := new(big.Int)
	input, err := s.abi.Pack("getTransactionHash",
		to, value, data, operation,
		big.NewInt(SafeTxGas), zero, zero,
		common.Address{}, common.Address{}, nonce,
	)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "编码 getTransactionHash 调用失败")
	}

	output, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.address, Data: input}, nil)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询多签交易摘要失败")
	}

	results, err := s.abi.Unpack("getTransactionHash", output)
	if err != nil || len(results) == 0 {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "解码交易摘要失败")
	}
	digest, ok := results[0].([32]byte)
	if !ok {
		return common.Hash{}, xerrors.New(xerrors.CodeChainFailure, "交易摘要类型不符")
	}
	return common.BytesToHash(digest[:]), nil
}
