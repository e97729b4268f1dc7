package transport

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"RebalanceChain/internal/consensus"
	xerrors "RebalanceChain/internal/errors"
	"RebalanceChain/pkg/logger"
)

// RabbitMQConfig 描述广播用 fanout 交换机的连接参数。
type RabbitMQConfig struct {
	URL      string
	Exchange string
	// AgentID 用于命名本参与方的专属队列。
	AgentID string
}

// RabbitMQTransport 用 fanout 交换机实现全量广播：
// 每个参与方声明一个绑定到交换机的独占队列，
// 发布到交换机的每条信封都会复制到所有队列。
type RabbitMQTransport struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	inbox    chan consensus.Envelope
	cancel   context.CancelFunc
	log      *slog.Logger
}

// NewRabbitMQTransport 连接 RabbitMQ 并接入广播交换机。
func NewRabbitMQTransport(cfg RabbitMQConfig) (*RabbitMQTransport, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "RabbitMQ URL 不能为空")
	}
	if cfg.AgentID == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "缺少参与方标识")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "rebalance.consensus"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "创建 RabbitMQ channel 失败")
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", false, true, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "声明广播交换机失败")
	}

	queueName := exchange + "." + cfg.AgentID
	queue, err := ch.QueueDeclare(queueName, false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "声明参与方队列失败")
	}
	if err := ch.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "绑定参与方队列失败")
	}

	msgs, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "订阅参与方队列失败")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &RabbitMQTransport{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		inbox:    make(chan consensus.Envelope, memberBuffer),
		cancel:   cancel,
		log:      logger.Named("transport"),
	}
	go t.pump(ctx, msgs)
	return t, nil
}

func (t *RabbitMQTransport) pump(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer close(t.inbox)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var env consensus.Envelope
			if err := json.Unmarshal(msg.Body, &env); err != nil {
				t.log.Warn("丢弃无法解析的信封", slog.Any("error", err))
				continue
			}
			select {
			case t.inbox <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Broadcast 把信封发布到广播交换机。
func (t *RabbitMQTransport) Broadcast(ctx context.Context, env consensus.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "序列化信封失败")
	}
	err = t.ch.PublishWithContext(ctx, t.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "广播信封失败")
	}
	return nil
}

// Receive 返回本参与方的收件通道。
func (t *RabbitMQTransport) Receive() <-chan consensus.Envelope {
	return t.inbox
}

// Close 断开 RabbitMQ 连接。
func (t *RabbitMQTransport) Close() error {
	t.cancel()
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
