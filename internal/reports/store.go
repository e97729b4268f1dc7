// Package reports 为调仓快照提供内容寻址存储：
// 存入对象得到内容标识，凭标识取回原文。
// 标识由对象序列化后的 keccak256 摘要导出，
// 相同内容在任何节点上都得到相同标识。
package reports

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "RebalanceChain/internal/errors"
)

// Store 保存序列化报告并返回内容标识。
type Store interface {
	Put(ctx context.Context, obj any) (string, error)
	Get(ctx context.Context, contentID string) ([]byte, error)
	Close() error
}

// encode 序列化对象并计算内容标识。
func encode(obj any) (string, []byte, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return "", nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化报告失败")
	}
	contentID := hexutil.Encode(crypto.Keccak256(raw))
	return contentID, raw, nil
}
