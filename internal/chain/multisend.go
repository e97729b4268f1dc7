package chain

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	xerrors "RebalanceChain/internal/errors"
)

// 多签交易的操作类型。
const (
	OperationCall         byte = 0
	OperationDelegateCall byte = 1
)

const multiSendABI = `[
	{
		"name": "multiSend",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "transactions", "type": "bytes"}
		],
		"outputs": []
	}
]`

// MultiSendTx 是 multisend 批次中的一笔子交易。
type MultiSendTx struct {
	Operation byte
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// PackMultiSendTxs 按 gnosis multisend 的紧凑格式拼接子交易：
// 每笔为 operation(1) + to(20) + value(32) + len(data)(32) + data。
func PackMultiSendTxs(txs []MultiSendTx) ([]byte, error) {
	if len(txs) == 0 {
		return nil, xerrors.New(xerrors.CodeChainFailure, "multisend 批次不能为空")
	}

	var buf bytes.Buffer
	for _, tx := range txs {
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		buf.WriteByte(tx.Operation)
		buf.Write(tx.To.Bytes())
		buf.Write(math.U256Bytes(value))
		buf.Write(math.U256Bytes(big.NewInt(int64(len(tx.Data)))))
		buf.Write(tx.Data)
	}
	return buf.Bytes(), nil
}

// MultiSendData 把打包好的子交易批次封装为 multiSend(bytes) 的调用数据。
func MultiSendData(txs []MultiSendTx) ([]byte, error) {
	packed, err := PackMultiSendTxs(txs)
	if err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(strings.NewReader(multiSendABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析 multisend ABI 失败")
	}
	input, err := parsed.Pack("multiSend", packed)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "编码 multiSend 调用失败")
	}
	return input, nil
}
