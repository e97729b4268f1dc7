package feeds

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "RebalanceChain/internal/errors"
	"RebalanceChain/pkg/logger"
)

// Answerer 返回链上价格预言机的最新美元报价。
type Answerer interface {
	LatestAnswer(ctx context.Context) (float64, error)
}

// OracleSource 把单一代币的链上预言机报价适配成价格源。
// 预言机只服务一个交易对，其余符号一律视为不支持。
type OracleSource struct {
	symbol string
	oracle Answerer
}

// NewOracleSource 创建服务于给定代币符号的预言机价格源。
func NewOracleSource(symbol string, oracle Answerer) (*OracleSource, error) {
	if symbol == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "预言机价格源缺少代币符号")
	}
	if oracle == nil {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "预言机价格源缺少预言机访问器")
	}
	return &OracleSource{symbol: symbol, oracle: oracle}, nil
}

// Price 返回预言机报价。
func (s *OracleSource) Price(ctx context.Context, symbol string) (float64, error) {
	if symbol != s.symbol {
		return 0, xerrors.New(xerrors.CodeSymbolUnsupported,
			fmt.Sprintf("预言机只报价 %s, 不支持 %s", s.symbol, symbol))
	}
	price, err := s.oracle.LatestAnswer(ctx)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "读取预言机报价失败")
	}
	return price, nil
}

// FallbackSource 先查主价格源，失败后转查备用价格源。
// 备用源不支持的符号仍返回主源的错误。
type FallbackSource struct {
	primary  PriceSource
	fallback PriceSource
	log      *slog.Logger
}

// NewFallbackSource 组合主备两个价格源。
func NewFallbackSource(primary, fallback PriceSource) *FallbackSource {
	return &FallbackSource{
		primary:  primary,
		fallback: fallback,
		log:      logger.Named("feeds"),
	}
}

// Price 查询价格，主源失败时降级到备用源。
func (s *FallbackSource) Price(ctx context.Context, symbol string) (float64, error) {
	price, err := s.primary.Price(ctx, symbol)
	if err == nil {
		return price, nil
	}
	if ctx.Err() != nil {
		return 0, err
	}

	fallbackPrice, fallbackErr := s.fallback.Price(ctx, symbol)
	if fallbackErr != nil {
		if xerrors.CodeOf(fallbackErr) == xerrors.CodeSymbolUnsupported {
			return 0, err
		}
		return 0, fallbackErr
	}
	s.log.Warn("主价格源失败, 使用备用报价",
		slog.String("symbol", symbol), slog.Any("error", err))
	return fallbackPrice, nil
}
