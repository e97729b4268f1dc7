package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeCaller 把 eth_call 的返回值固定为预置字节。
type fakeCaller struct {
	lastMsg ethereum.CallMsg
	output  []byte
	err     error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastMsg = msg
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func TestMockDexGetBalance(t *testing.T) {
	contract := common.HexToAddress("0xbB7f0e7cfF9aAC4b3F6bA55321DB5060c0685b34")
	caller := &fakeCaller{output: math.U256Bytes(big.NewInt(12345))}

	dex, err := NewMockDex(caller, contract)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	user := common.HexToAddress("0xFA1FC163deeaE7Bded993Cf9aFd4A4B9ae6b3639")
	balance, err := dex.GetBalance(context.Background(), user, "ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("unexpected balance: %v", balance)
	}
	if caller.lastMsg.To == nil || *caller.lastMsg.To != contract {
		t.Fatalf("call routed to wrong address: %v", caller.lastMsg.To)
	}
	if !bytes.Equal(caller.lastMsg.Data[:4], selector("getBalance(address,string)")) {
		t.Fatalf("unexpected selector: %x", caller.lastMsg.Data[:4])
	}
}

func TestMockDexAdjustBalanceData(t *testing.T) {
	dex, err := NewMockDex(&fakeCaller{}, common.Address{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	user := common.HexToAddress("0xFA1FC163deeaE7Bded993Cf9aFd4A4B9ae6b3639")
	data, err := dex.AdjustBalanceData(user, "USDC", big.NewInt(42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(data[:4], selector("adjustBalance(address,string,uint256)")) {
		t.Fatalf("unexpected selector: %x", data[:4])
	}

	if _, err := dex.AdjustBalanceData(user, "USDC", big.NewInt(-1)); err == nil {
		t.Fatalf("expected error for negative balance")
	}
}

func TestOracleLatestAnswer(t *testing.T) {
	caller := &fakeCaller{output: math.U256Bytes(big.NewInt(234512345678))}

	oracle, err := NewOracle(caller, common.Address{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	price, err := oracle.LatestAnswer(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 2345.12345678 {
		t.Fatalf("unexpected price: %v", price)
	}
}

func TestPackMultiSendTxs(t *testing.T) {
	to := common.HexToAddress("0xbB7f0e7cfF9aAC4b3F6bA55321DB5060c0685b34")
	data := []byte{0xde, 0xad, 0xbe, 0xef}

	packed, err := PackMultiSendTxs([]MultiSendTx{
		{Operation: OperationCall, To: to, Value: big.NewInt(7), Data: data},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// operation(1) + to(20) + value(32) + len(32) + data(4)
	if len(packed) != 1+20+32+32+4 {
		t.Fatalf("unexpected packed length: %d", len(packed))
	}
	if packed[0] != OperationCall {
		t.Fatalf("unexpected operation byte: %d", packed[0])
	}
	if !bytes.Equal(packed[1:21], to.Bytes()) {
		t.Fatalf("unexpected to field: %x", packed[1:21])
	}
	if packed[52] != 7 {
		t.Fatalf("unexpected value field: %x", packed[21:53])
	}
	if packed[84] != byte(len(data)) {
		t.Fatalf("unexpected length field: %x", packed[53:85])
	}
	if !bytes.Equal(packed[85:], data) {
		t.Fatalf("unexpected data tail: %x", packed[85:])
	}

	if _, err := PackMultiSendTxs(nil); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}

func TestMultiSendData(t *testing.T) {
	input, err := MultiSendData([]MultiSendTx{
		{Operation: OperationCall, To: common.Address{}, Data: []byte{0x01}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(input[:4], selector("multiSend(bytes)")) {
		t.Fatalf("unexpected selector: %x", input[:4])
	}
}

func TestSafeTransactionHash(t *testing.T) {
	digest := crypto.Keccak256Hash([]byte("tx"))
	caller := &fakeCaller{output: digest.Bytes()}

	safe, err := NewSafe(caller, common.HexToAddress("0x0000000000000000000000000000000000000001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hash, err := safe.TransactionHash(
		context.Background(),
		common.HexToAddress("0x0000000000000000000000000000000000000002"),
		nil, []byte{0x01}, OperationDelegateCall, big.NewInt(3),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != digest {
		t.Fatalf("unexpected hash: %s", hash)
	}
	if !bytes.Equal(caller.lastMsg.Data[:4],
		selector("getTransactionHash(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,uint256)")) {
		t.Fatalf("unexpected selector: %x", caller.lastMsg.Data[:4])
	}

	if _, err := safe.TransactionHash(context.Background(), common.Address{}, nil, nil, OperationCall, nil); err == nil {
		t.Fatalf("expected error without nonce")
	}
}

func TestHashPayloadRoundTrip(t *testing.T) {
	digest := crypto.Keccak256Hash([]byte("payload"))
	original := TxPayload{
		SafeTxHash: hex.EncodeToString(digest.Bytes()),
		EtherValue: big.NewInt(0),
		SafeTxGas:  big.NewInt(SafeTxGas),
		To:         common.HexToAddress("0xbB7f0e7cfF9aAC4b3F6bA55321DB5060c0685b34"),
		Operation:  OperationDelegateCall,
		Data:       []byte{0x01, 0x02, 0x03},
	}

	encoded, err := HashPayloadToHex(original)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := ParsePayloadHex(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.SafeTxHash != original.SafeTxHash {
		t.Fatalf("digest mismatch: %s != %s", decoded.SafeTxHash, original.SafeTxHash)
	}
	if decoded.EtherValue.Cmp(original.EtherValue) != 0 || decoded.SafeTxGas.Cmp(original.SafeTxGas) != 0 {
		t.Fatalf("value/gas mismatch: %+v", decoded)
	}
	if decoded.To != original.To || decoded.Operation != original.Operation {
		t.Fatalf("to/operation mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.Data, original.Data) {
		t.Fatalf("data mismatch: %x", decoded.Data)
	}
}

func TestHashPayloadToHexValidation(t *testing.T) {
	if _, err := HashPayloadToHex(TxPayload{SafeTxHash: "abc"}); err == nil {
		t.Fatalf("expected error for short digest")
	}
	if _, err := ParsePayloadHex("deadbeef"); err == nil {
		t.Fatalf("expected error for short payload")
	}
}
