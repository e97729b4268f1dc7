package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	xerrors "RebalanceChain/internal/errors"
	"RebalanceChain/internal/portfolio"
)

// Config 描述再平衡智能体在启动阶段需要加载的全部配置。
type Config struct {
	Agent       AgentConfig       `json:"agent"`
	Server      ServerConfig      `json:"server"`
	Transport   TransportConfig   `json:"transport"`
	Chain       ChainConfig       `json:"chain"`
	Rebalancing RebalancingConfig `json:"rebalancing"`
	Feeds       FeedsConfig       `json:"feeds"`
	Reports     ReportsConfig     `json:"reports"`
	Journal     JournalConfig     `json:"journal"`
	Logging     LoggingConfig     `json:"logging"`
}

// AgentConfig 控制本参与方的身份与回合参数。
type AgentConfig struct {
	ID             string `json:"id"`
	Participants   int    `json:"participants"`
	RoundTimeoutMS int    `json:"round_timeout_ms"`
	TickIntervalMS int    `json:"tick_interval_ms"`
}

// ServerConfig 控制状态查询服务的监听地址。
type ServerConfig struct {
	Address string `json:"address"`
}

// TransportConfig 描述广播通道的实现与连接参数。
type TransportConfig struct {
	Driver   string `json:"driver"`
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
}

// ChainConfig 是链上协作方的地址簿。
type ChainConfig struct {
	RPCURL           string `json:"rpc_url"`
	PortfolioUser    string `json:"portfolio_user"`
	DexAddress       string `json:"dex_address"`
	SafeAddress      string `json:"safe_address"`
	MultisendAddress string `json:"multisend_address"`
	OracleAddress    string `json:"oracle_address"`
}

// RebalancingConfig 是再平衡策略参数。
type RebalancingConfig struct {
	Tokens            []string  `json:"tokens"`
	TargetPercentages []float64 `json:"target_percentages"`
	Threshold         float64   `json:"threshold"`
	// ApiSelection 是本方在价格源协商回合中的提案。
	ApiSelection string `json:"api_selection"`
}

// FeedsConfig 描述价格源定义文件与各提供方的密钥。
type FeedsConfig struct {
	SpecPath            string `json:"spec_path"`
	CoingeckoAPIKey     string `json:"coingecko_api_key"`
	CoinMarketCapAPIKey string `json:"coinmarketcap_api_key"`
	TimeoutMS           int    `json:"timeout_ms"`
}

// ReportsConfig 描述调仓快照存储的后端。
type ReportsConfig struct {
	Driver    string `json:"driver"`
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
	TTLHours  int    `json:"ttl_hours"`
}

// JournalConfig 描述回合日志的后端。
type JournalConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// LoggingConfig 控制日志级别与输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
}

// Load 解析指定路径的 JSON 配置文件并校验不变量。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "读取配置文件失败")
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析配置失败")
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Agent.Participants <= 0 {
		c.Agent.Participants = 1
	}
	if c.Agent.RoundTimeoutMS <= 0 {
		c.Agent.RoundTimeoutMS = 30000
	}
	if c.Agent.TickIntervalMS <= 0 {
		c.Agent.TickIntervalMS = 100
	}
	if c.Transport.Driver == "" {
		c.Transport.Driver = "memory"
	}
	if c.Reports.Driver == "" {
		c.Reports.Driver = "memory"
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Rebalancing.ApiSelection == "" {
		c.Rebalancing.ApiSelection = "coingecko"
	}
	if c.Feeds.SpecPath != "" && !filepath.IsAbs(c.Feeds.SpecPath) {
		c.Feeds.SpecPath = filepath.Join(baseDir, c.Feeds.SpecPath)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate 校验启动不变量。任何违反都在工作流开始前失败，
// 绝不作为回合事件暴露。
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return xerrors.New(xerrors.CodeConfigInvalid, "缺少参与方标识")
	}
	if err := c.RebalancingParams().Validate(); err != nil {
		return err
	}
	switch c.Transport.Driver {
	case "memory":
	case "rabbitmq":
		if c.Transport.URL == "" {
			return xerrors.New(xerrors.CodeConfigInvalid, "rabbitmq 通道缺少 URL")
		}
	default:
		return xerrors.New(xerrors.CodeConfigInvalid,
			fmt.Sprintf("未知的广播通道驱动: %s", c.Transport.Driver))
	}
	switch c.Reports.Driver {
	case "memory":
	case "redis":
		if c.Reports.Address == "" {
			return xerrors.New(xerrors.CodeConfigInvalid, "redis 报告存储缺少地址")
		}
	default:
		return xerrors.New(xerrors.CodeConfigInvalid,
			fmt.Sprintf("未知的报告存储驱动: %s", c.Reports.Driver))
	}
	switch c.Journal.Driver {
	case "memory":
	case "mysql":
		if c.Journal.DSN == "" {
			return xerrors.New(xerrors.CodeConfigInvalid, "mysql 回合日志缺少 DSN")
		}
	default:
		return xerrors.New(xerrors.CodeConfigInvalid,
			fmt.Sprintf("未知的回合日志驱动: %s", c.Journal.Driver))
	}
	return nil
}

// RebalancingParams 把配置转换为策略参数。
func (c *Config) RebalancingParams() portfolio.Params {
	return portfolio.Params{
		Tokens:            c.Rebalancing.Tokens,
		TargetPercentages: c.Rebalancing.TargetPercentages,
		Threshold:         c.Rebalancing.Threshold,
	}
}
