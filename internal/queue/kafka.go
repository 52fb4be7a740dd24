package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

const (
	headerMessageID     = "message-id"
	headerCorrelationID = "correlation-id"
	headerDeadLetter    = "dead-letter-reason"
	headerError         = "dead-letter-error"
)

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	Group    string   `yaml:"group"`
	ClientID string   `yaml:"client_id"`
}

// DeadLetterTopic - <topic>.deadletter
func (c KafkaConfig) DeadLetterTopic() string {
	return c.Topic + ".deadletter"
}

func newSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true
	return cfg
}

// ============================================================================
// Producer
// ============================================================================

// KafkaPublisher - Key(시그니처) 기준으로 파티션이 정해지므로 같은 시그니처는 순서가 유지된다
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.producer.SendMessage(toProducerMessage(p.topic, msg, nil))
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func toProducerMessage(topic string, msg Message, extra map[string]string) *sarama.ProducerMessage {
	headers := []sarama.RecordHeader{
		{Key: []byte(headerMessageID), Value: []byte(msg.ID)},
		{Key: []byte(headerCorrelationID), Value: []byte(msg.CorrelationID)},
	}
	for k, v := range msg.Attributes {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	for k, v := range extra {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(msg.Key),
		Value:   sarama.ByteEncoder(msg.Body),
		Headers: headers,
	}
}

func fromConsumerMessage(m *sarama.ConsumerMessage) Message {
	msg := Message{
		Key:        string(m.Key),
		Body:       m.Value,
		Attributes: make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		if h == nil {
			continue
		}
		switch string(h.Key) {
		case headerMessageID:
			msg.ID = string(h.Value)
		case headerCorrelationID:
			msg.CorrelationID = string(h.Value)
		default:
			msg.Attributes[string(h.Key)] = string(h.Value)
		}
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
	}
	return msg
}

// ============================================================================
// Consumer
// ============================================================================

// KafkaConsumer - consumer group으로 메시지를 소비한다
//
// 재전달은 프로세스 안에서 RetryPolicy대로 수행하고, 한도를 넘기면
// dead-letter 토픽으로 옮긴 뒤 sink에 기록하고 offset을 커밋한다.
type KafkaConsumer struct {
	cfg    KafkaConfig
	group  sarama.ConsumerGroup
	dlq    sarama.SyncProducer
	policy RetryPolicy
	sink   DeadLetterSink
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
}

func NewKafkaConsumer(cfg KafkaConfig, policy RetryPolicy, sink DeadLetterSink, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.Group == "" {
		return nil, errors.New("kafka brokers, topic and group are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	scfg := newSaramaConfig(cfg.ClientID)
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, scfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	dlq, err := sarama.NewSyncProducer(cfg.Brokers, scfg)
	if err != nil {
		_ = group.Close()
		return nil, fmt.Errorf("failed to create dead-letter producer: %w", err)
	}
	return &KafkaConsumer{
		cfg:    cfg,
		group:  group,
		dlq:    dlq,
		policy: policy.normalized(),
		sink:   sink,
		logger: logger.With("component", "kafka_consumer"),
		sleep:  sleepCtx,
	}, nil
}

// Run - ctx가 취소될 때까지 rebalance마다 Consume을 다시 호출
func (c *KafkaConsumer) Run(ctx context.Context, h Handler) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("kafka consumer error", "error", err)
		}
	}()

	handler := &groupHandler{consumer: c, handle: h}
	for {
		if err := c.group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("kafka consume failed", "error", err)
			if !c.sleep(ctx, time.Second) {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return errors.Join(c.group.Close(), c.dlq.Close())
}

type groupHandler struct {
	consumer *KafkaConsumer
	handle   Handler
}

func (g *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (g *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (g *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			g.consumer.process(sess.Context(), g.handle, fromConsumerMessage(m))
			sess.MarkMessage(m, "")
		}
	}
}

func (c *KafkaConsumer) process(ctx context.Context, h Handler, msg Message) {
	workCtx := context.WithoutCancel(ctx)
	for attempt := 1; ; attempt++ {
		msg.DeliveryCount = attempt
		err := h(workCtx, msg)
		if err == nil {
			return
		}
		if attempt >= c.policy.MaxDeliveries {
			c.deadLetter(workCtx, DeadLetter{Message: msg, Err: err, Reason: ReasonMaxDeliveryExceeded})
			return
		}
		delay := c.policy.Backoff(attempt)
		c.logger.Warn("message processing failed, redelivering",
			"message_id", msg.ID, "attempt", attempt, "delay", delay, "error", err)
		c.sleep(workCtx, delay)
	}
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, dl DeadLetter) {
	extra := map[string]string{headerDeadLetter: dl.Reason}
	if dl.Err != nil {
		extra[headerError] = dl.Err.Error()
	}
	if _, _, err := c.dlq.SendMessage(toProducerMessage(c.cfg.DeadLetterTopic(), dl.Message, extra)); err != nil {
		c.logger.Error("failed to publish dead letter", "message_id", dl.Message.ID, "error", err)
	}
	if c.sink != nil {
		if err := c.sink.Record(ctx, dl); err != nil {
			c.logger.Error("failed to record dead letter", "message_id", dl.Message.ID, "error", err)
		}
	}
}
