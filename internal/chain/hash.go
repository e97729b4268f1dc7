package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "RebalanceChain/internal/errors"
)

const (
	hashHexLength    = 64
	addressHexLength = 40
	valueHexLength   = 64
	gasHexLength     = 64
	opHexLength      = 2
)

// TxPayload 是进入共识的完整交易描述：多签摘要加上复算该摘要
// 所需的全部字段，任一节点都能据此独立验证。
type TxPayload struct {
	SafeTxHash string
	EtherValue *big.Int
	SafeTxGas  *big.Int
	To         common.Address
	Operation  byte
	Data       []byte
}

// HashPayloadToHex 把交易描述编码为单个十六进制字符串：
// 摘要(64) + value(64) + gas(64) + operation(2) + to(40) + data。
func HashPayloadToHex(p TxPayload) (string, error) {
	digest := strings.TrimPrefix(strings.ToLower(p.SafeTxHash), "0x")
	if len(digest) != hashHexLength {
		return "", xerrors.New(xerrors.CodeChainFailure,
			fmt.Sprintf("交易摘要长度不合法: %d", len(digest)))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "交易摘要不是十六进制")
	}

	value := p.EtherValue
	if value == nil {
		value = new(big.Int)
	}
	gas := p.SafeTxGas
	if gas == nil {
		gas = new(big.Int)
	}
	if value.Sign() < 0 || gas.Sign() < 0 {
		return "", xerrors.New(xerrors.CodeChainFailure, "value 与 gas 必须为非负整数")
	}

	var sb strings.Builder
	sb.WriteString(digest)
	sb.WriteString(fmt.Sprintf("%064x", value))
	sb.WriteString(fmt.Sprintf("%064x", gas))
	sb.WriteString(fmt.Sprintf("%02x", p.Operation))
	sb.WriteString(strings.ToLower(strings.TrimPrefix(p.To.Hex(), "0x")))
	sb.WriteString(hex.EncodeToString(p.Data))
	return sb.String(), nil
}

// ParsePayloadHex 是 HashPayloadToHex 的逆操作，
// 用于从共识后的字符串还原交易描述。
func ParsePayloadHex(payload string) (TxPayload, error) {
	payload = strings.TrimPrefix(strings.ToLower(payload), "0x")

	minLength := hashHexLength + valueHexLength + gasHexLength + opHexLength + addressHexLength
	if len(payload) < minLength {
		return TxPayload{}, xerrors.New(xerrors.CodeChainFailure,
			fmt.Sprintf("交易载荷长度不足: %d", len(payload)))
	}

	offset := 0
	digest := payload[offset : offset+hashHexLength]
	offset += hashHexLength

	value, ok := new(big.Int).SetString(payload[offset:offset+valueHexLength], 16)
	if !ok {
		return TxPayload{}, xerrors.New(xerrors.CodeChainFailure, "value 字段不是十六进制")
	}
	offset += valueHexLength

	gas, ok := new(big.Int).SetString(payload[offset:offset+gasHexLength], 16)
	if !ok {
		return TxPayload{}, xerrors.New(xerrors.CodeChainFailure, "gas 字段不是十六进制")
	}
	offset += gasHexLength

	opBytes, err := hex.DecodeString(payload[offset : offset+opHexLength])
	if err != nil {
		return TxPayload{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "operation 字段不是十六进制")
	}
	offset += opHexLength

	toBytes, err := hex.DecodeString(payload[offset : offset+addressHexLength])
	if err != nil {
		return TxPayload{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "to 字段不是十六进制")
	}
	offset += addressHexLength

	data, err := hex.DecodeString(payload[offset:])
	if err != nil {
		return TxPayload{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "data 字段不是十六进制")
	}

	return TxPayload{
		SafeTxHash: digest,
		EtherValue: value,
		SafeTxGas:  gas,
		To:         common.BytesToAddress(toBytes),
		Operation:  opBytes[0],
		Data:       data,
	}, nil
}
