package behaviours

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"RebalanceChain/internal/consensus"
	xerrors "RebalanceChain/internal/errors"
	"RebalanceChain/internal/journal"
	"RebalanceChain/internal/observability/metrics"
	"RebalanceChain/internal/transport"
	"RebalanceChain/pkg/logger"
)

const defaultTickInterval = 100 * time.Millisecond

// DriverConfig 描述构建工作流驱动器所需的参数。
type DriverConfig struct {
	Engine    *consensus.Engine
	Transport transport.Broadcaster
	Journal   journal.Recorder
	// TickInterval 是状态机滴答的间隔。
	TickInterval time.Duration
}

// Driver 驱动单个参与方跑完一轮完整工作流：
// 每进入新回合执行一次匹配行为并广播载荷，随后接收信封、
// 推进状态机，直到到达终止回合。严格串行，任一时刻
// 只有一个行为在执行。
type Driver struct {
	engine     *consensus.Engine
	transport  transport.Broadcaster
	journal    journal.Recorder
	behaviours map[consensus.RoundID]Behaviour
	tick       time.Duration

	runID string
	seq   int
	log   *slog.Logger

	mu     sync.RWMutex
	status Status
}

// Status 是驱动器对外可见的运行快照,供状态查询服务读取。
type Status struct {
	RunID        string                      `json:"run_id"`
	CurrentRound consensus.RoundID           `json:"current_round"`
	Done         bool                        `json:"done"`
	StateHash    string                      `json:"state_hash"`
	Transitions  int                         `json:"transitions"`
	Data         *consensus.SynchronizedData `json:"-"`
}

// NewDriver 创建工作流驱动器并注册回合行为。
func NewDriver(cfg DriverConfig, all ...Behaviour) (*Driver, error) {
	if cfg.Engine == nil {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "缺少工作流引擎")
	}
	if cfg.Transport == nil {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "缺少广播通道")
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	behaviours := make(map[consensus.RoundID]Behaviour, len(all))
	for _, b := range all {
		if _, ok := behaviours[b.RoundID()]; ok {
			return nil, xerrors.New(xerrors.CodeConfigInvalid,
				"回合注册了重复的行为: "+string(b.RoundID()))
		}
		behaviours[b.RoundID()] = b
	}

	d := &Driver{
		engine:     cfg.Engine,
		transport:  cfg.Transport,
		journal:    cfg.Journal,
		behaviours: behaviours,
		tick:       tick,
		runID:      uuid.NewString(),
		log:        logger.Named("driver"),
	}
	d.refreshStatus()
	return d, nil
}

// RunID 返回本轮运行的标识。
func (d *Driver) RunID() string {
	return d.runID
}

// Status 返回驱动器当前的运行快照。
func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// refreshStatus 从引擎重建运行快照。
func (d *Driver) refreshStatus() {
	d.mu.Lock()
	d.status = Status{
		RunID:        d.runID,
		CurrentRound: d.engine.CurrentRound(),
		Done:         d.engine.Done(),
		StateHash:    d.engine.Data().Hash(),
		Transitions:  d.seq,
		Data:         d.engine.Data(),
	}
	d.mu.Unlock()
}

// Run 跑完一轮工作流，返回终止时的同步状态。
func (d *Driver) Run(ctx context.Context) (*consensus.SynchronizedData, error) {
	for !d.engine.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := d.act(ctx, d.engine.CurrentRound()); err != nil {
			return nil, err
		}
		if err := d.waitTransition(ctx); err != nil {
			return nil, err
		}
	}

	d.saveSnapshot(ctx)
	return d.engine.Data(), nil
}

// act 执行当前回合的行为并广播其载荷。
// 行为失败只记日志：本方放弃本回合的提案，等其余参与方
// 凑齐法定人数或回合超时重试。
func (d *Driver) act(ctx context.Context, round consensus.RoundID) error {
	behaviour, ok := d.behaviours[round]
	if !ok {
		return nil
	}

	payload, err := behaviour.Act(ctx, d.engine.Data())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Error("行为执行失败, 本回合不提案",
			slog.String("round", string(round)), slog.Any("error", err))
		return nil
	}

	env, err := consensus.Seal(round, payload)
	if err != nil {
		d.log.Error("封装载荷失败", slog.Any("error", err))
		return nil
	}
	if err := d.transport.Broadcast(ctx, env); err != nil {
		d.log.Error("广播载荷失败", slog.Any("error", err))
	}
	return nil
}

// waitTransition 接收信封并推进状态机，直到发生一次流转。
// 超时与 NO_MAJORITY 自环也算流转：自环会重建收集器，
// 回到 Run 后行为重新执行并再次广播，本阶段的数据收集
// 由此重启，而不是空转等待下一次超时。
func (d *Driver) waitTransition(ctx context.Context) error {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	start := d.seq
	for d.seq == start && !d.engine.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-d.transport.Receive():
			if !ok {
				return xerrors.New(xerrors.CodeTransportFailure, "广播通道已关闭")
			}
			if err := d.engine.Deliver(env); err != nil {
				d.log.Warn("投递载荷失败", slog.Any("error", err))
			}
			d.tickOnce(ctx)
		case <-ticker.C:
			d.tickOnce(ctx)
		}
	}
	return nil
}

func (d *Driver) tickOnce(ctx context.Context) {
	transition, ok := d.engine.Tick(time.Now())
	if !ok {
		return
	}
	d.seq++
	d.refreshStatus()
	metrics.ObserveRoundTransition(string(transition.From), string(transition.Event), string(transition.To))
	d.record(ctx, transition)
}

// record 把一次流转写入回合日志。日志失败不阻断工作流。
func (d *Driver) record(ctx context.Context, t consensus.Transition) {
	if d.journal == nil {
		return
	}
	err := d.journal.Append(ctx, journal.Record{
		RunID:     d.runID,
		Seq:       d.seq,
		FromRound: string(t.From),
		Event:     string(t.Event),
		ToRound:   string(t.To),
		StateHash: t.StateHash,
		Payloads:  t.Payloads,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		d.log.Warn("写入回合日志失败", slog.Any("error", err))
	}
}

func (d *Driver) saveSnapshot(ctx context.Context) {
	if d.journal == nil {
		return
	}
	if err := d.journal.SaveSnapshot(ctx, d.runID, d.engine.PersistedSubset()); err != nil {
		d.log.Warn("保存保留键快照失败", slog.Any("error", err))
	}
}
