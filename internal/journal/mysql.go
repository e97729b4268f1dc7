package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "RebalanceChain/internal/errors"
)

// MySQLConfig 描述回合日志数据库的连接参数。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLRecorder 把回合日志写入 MySQL。
type SQLRecorder struct {
	db *sql.DB
}

// NewSQLRecorder 连接数据库并确保表结构存在。
func NewSQLRecorder(ctx context.Context, cfg MySQLConfig) (*SQLRecorder, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	r := &SQLRecorder{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLRecorder) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS round_transitions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			seq INT NOT NULL,
			from_round VARCHAR(64) NOT NULL,
			event VARCHAR(32) NOT NULL,
			to_round VARCHAR(64) NOT NULL,
			state_hash VARCHAR(80) NOT NULL,
			payloads INT NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE KEY uniq_run_seq (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS run_snapshots (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			data JSON NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化回合日志表失败")
		}
	}
	return nil
}

// Append 追加一条流转记录。
func (r *SQLRecorder) Append(ctx context.Context, record Record) error {
	if record.RunID == "" {
		return xerrors.New(xerrors.CodeStorageFailure, "流转记录缺少运行标识")
	}
	createdAt := record.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO round_transitions
			(run_id, seq, from_round, event, to_round, state_hash, payloads, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID, record.Seq, record.FromRound, record.Event,
		record.ToRound, record.StateHash, record.Payloads, createdAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入流转记录失败")
	}
	return nil
}

// List 按序号顺序返回某轮运行的全部流转记录。
func (r *SQLRecorder) List(ctx context.Context, runID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, seq, from_round, event, to_round, state_hash, payloads, created_at
		 FROM round_transitions WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流转记录失败")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(
			&record.RunID, &record.Seq, &record.FromRound, &record.Event,
			&record.ToRound, &record.StateHash, &record.Payloads, &record.CreatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析流转记录失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历流转记录失败")
	}
	return records, nil
}

// SaveSnapshot 保存本轮运行结束后的保留键快照。
func (r *SQLRecorder) SaveSnapshot(ctx context.Context, runID string, data map[string]any) error {
	if runID == "" {
		return xerrors.New(xerrors.CodeStorageFailure, "快照缺少运行标识")
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化快照失败")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO run_snapshots (run_id, data, created_at) VALUES (?, ?, ?)`,
		runID, encoded, time.Now().Unix())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入快照失败")
	}
	return nil
}

// LatestSnapshot 返回最近一次保存的保留键快照,没有时返回空映射。
func (r *SQLRecorder) LatestSnapshot(ctx context.Context) (map[string]any, error) {
	var encoded []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM run_snapshots ORDER BY id DESC LIMIT 1`).Scan(&encoded)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取快照失败")
	}

	var data map[string]any
	if err := json.Unmarshal(encoded, &data); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析快照失败")
	}
	return data, nil
}

// Close 关闭数据库连接。
func (r *SQLRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
