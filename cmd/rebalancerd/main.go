package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"RebalanceChain/internal/api"
	"RebalanceChain/internal/behaviours"
	"RebalanceChain/internal/chain"
	"RebalanceChain/internal/config"
	"RebalanceChain/internal/consensus"
	"RebalanceChain/internal/feeds"
	"RebalanceChain/internal/journal"
	"RebalanceChain/internal/reports"
	"RebalanceChain/internal/transport"
	"RebalanceChain/pkg/logger"
)

// main 是再平衡智能体守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("rebalancerd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("REBALANCE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "rebalancer.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
	}); err != nil {
		return err
	}
	defer logger.Sync()

	priceSources, err := createPriceSources(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	dex, err := chain.NewMockDex(client, common.HexToAddress(cfg.Chain.DexAddress))
	if err != nil {
		return err
	}
	safe, err := chain.NewSafe(client, common.HexToAddress(cfg.Chain.SafeAddress))
	if err != nil {
		return err
	}

	// 预言机是可选的 ETH 报价兜底。
	if cfg.Chain.OracleAddress != "" {
		oracle, err := chain.NewOracle(client, common.HexToAddress(cfg.Chain.OracleAddress))
		if err != nil {
			return err
		}
		oracleSource, err := feeds.NewOracleSource("ETH", oracle)
		if err != nil {
			return err
		}
		for name, source := range priceSources {
			priceSources[name] = feeds.NewFallbackSource(source, oracleSource)
		}
	}

	broadcaster, err := createTransport(cfg)
	if err != nil {
		return err
	}
	defer broadcaster.Close()

	reportStore, err := createReportStore(cfg)
	if err != nil {
		return err
	}
	defer reportStore.Close()

	recorder, err := createRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	// 上一轮运行的保留键作为本轮种子。
	seed, err := recorder.LatestSnapshot(ctx)
	if err != nil {
		return err
	}

	engine, err := consensus.NewEngine(consensus.EngineConfig{
		NbParticipants: cfg.Agent.Participants,
		RoundTimeout:   time.Duration(cfg.Agent.RoundTimeoutMS) * time.Millisecond,
		Seed:           seed,
	})
	if err != nil {
		return err
	}

	deps := behaviours.Deps{
		AgentID:       cfg.Agent.ID,
		Params:        cfg.RebalancingParams(),
		ApiPreference: cfg.Rebalancing.ApiSelection,
		PriceSources:  priceSources,
		Balances:      dex,
		PortfolioUser: common.HexToAddress(cfg.Chain.PortfolioUser),
		Dex:           dex,
		Safe:          safe,
		Multisend:     common.HexToAddress(cfg.Chain.MultisendAddress),
		Reports:       reportStore,
	}

	driver, err := behaviours.NewDriver(behaviours.DriverConfig{
		Engine:       engine,
		Transport:    broadcaster,
		Journal:      recorder,
		TickInterval: time.Duration(cfg.Agent.TickIntervalMS) * time.Millisecond,
	},
		behaviours.NewApiSelectionBehaviour(deps),
		behaviours.NewDataPullBehaviour(deps),
		behaviours.NewAlternativeDataPullBehaviour(deps),
		behaviours.NewDecisionBehaviour(deps),
		behaviours.NewTxPreparationBehaviour(deps),
	)
	if err != nil {
		return err
	}

	mainLog := logger.Named("rebalancerd")
	go func() {
		data, err := driver.Run(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				mainLog.Error("工作流异常终止", slog.Any("error", err))
			}
			return
		}
		if hash, ok := data.MostVotedTxHash(); ok {
			mainLog.Info("工作流完成, 交易待多签提交",
				slog.String("run_id", driver.RunID()),
				slog.String("tx_hash", hash),
			)
			return
		}
		mainLog.Info("工作流完成, 无需调仓", slog.String("run_id", driver.RunID()))
	}()

	// 状态查询服务持续运行，工作流结束后仍可查询终态。
	server := api.NewServer(cfg.Server.Address, driver)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createPriceSources 按价格源定义构建两个 HTTP 客户端。
func createPriceSources(_ context.Context, cfg *config.Config) (map[string]feeds.PriceSource, error) {
	defs, err := feeds.LoadFeedDefinitions(cfg.Feeds.SpecPath)
	if err != nil {
		return nil, err
	}

	keys := map[string]string{
		"coingecko":     cfg.Feeds.CoingeckoAPIKey,
		"coinmarketcap": cfg.Feeds.CoinMarketCapAPIKey,
	}

	sources := make(map[string]feeds.PriceSource, len(defs.Feeds))
	for name, def := range defs.Feeds {
		client, err := feeds.NewClient(feeds.ClientConfig{
			Definition: def,
			APIKey:     keys[name],
			Timeout:    time.Duration(cfg.Feeds.TimeoutMS) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("构建价格源 %s 失败: %w", name, err)
		}
		sources[name] = client
	}
	return sources, nil
}

func createTransport(cfg *config.Config) (transport.Broadcaster, error) {
	switch cfg.Transport.Driver {
	case "", "memory":
		// 单进程运行时本方即枢纽上唯一的参与方。
		hub := transport.NewMemoryHub()
		return hub.Join(cfg.Agent.ID)
	case "rabbitmq":
		return transport.NewRabbitMQTransport(transport.RabbitMQConfig{
			URL:      cfg.Transport.URL,
			Exchange: cfg.Transport.Exchange,
			AgentID:  cfg.Agent.ID,
		})
	default:
		return nil, fmt.Errorf("未知的广播通道驱动: %s", cfg.Transport.Driver)
	}
}

func createReportStore(cfg *config.Config) (reports.Store, error) {
	switch cfg.Reports.Driver {
	case "", "memory":
		return reports.NewMemoryStore(), nil
	case "redis":
		return reports.NewRedisStore(reports.RedisConfig{
			Address:   cfg.Reports.Address,
			Password:  cfg.Reports.Password,
			DB:        cfg.Reports.DB,
			KeyPrefix: cfg.Reports.KeyPrefix,
			TTL:       time.Duration(cfg.Reports.TTLHours) * time.Hour,
		})
	default:
		return nil, fmt.Errorf("未知的报告存储驱动: %s", cfg.Reports.Driver)
	}
}

func createRecorder(ctx context.Context, cfg *config.Config) (journal.Recorder, error) {
	switch cfg.Journal.Driver {
	case "", "memory":
		return journal.NewMemoryRecorder(), nil
	case "mysql":
		return journal.NewSQLRecorder(ctx, journal.MySQLConfig{DSN: cfg.Journal.DSN})
	default:
		return nil, fmt.Errorf("未知的回合日志驱动: %s", cfg.Journal.Driver)
	}
}
