package reports

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "RebalanceChain/internal/errors"
)

// RedisConfig 描述 Redis 报告存储的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	// TTL 为零表示报告永不过期。
	TTL time.Duration
}

// RedisStore 把报告按内容标识写入 Redis。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 报告存储。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "rebalance:reports:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// Put 保存报告并返回内容标识。重复写入同一内容是幂等的。
func (s *RedisStore) Put(ctx context.Context, obj any) (string, error) {
	contentID, raw, err := encode(obj)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.prefix+contentID, raw, s.ttl).Err(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入报告失败")
	}
	return contentID, nil
}

// Get 按内容标识取回报告原文。
func (s *RedisStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.prefix+contentID).Bytes()
	if err == redis.Nil {
		return nil, xerrors.New(xerrors.CodeStorageFailure, "报告不存在: "+contentID)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取报告失败")
	}
	return raw, nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
