// Package kafka 提供了与 Kafka 消息队列交互的功能：indexer 侧生产入库任务，服务端消费并入库。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"kb-rag-go/internal/config"
	"kb-rag-go/internal/model"
	"kb-rag-go/pkg/log"
	"kb-rag-go/pkg/tasks"
)

// maxAttempts 是同一任务的最大处理次数，达到后提交 offset 放弃该消息。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 把入库请求写入 Kafka。消息以 document_id 为 key，同一文档落在同一分区，保持顺序。
type Producer struct {
	writer messageWriter
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Ingest 把请求排入队列，返回 queued 状态；真正的入库结果由消费端决定。
func (p *Producer) Ingest(ctx context.Context, req *model.IngestRequest) (*model.IngestResponse, error) {
	value, err := json.Marshal(tasks.NewIngestTask(req))
	if err != nil {
		return nil, err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(req.DocumentID), Value: value}); err != nil {
		return nil, fmt.Errorf("写入 Kafka 失败: %w", err)
	}
	return &model.IngestResponse{
		Status:       model.StatusQueued,
		DocumentID:   req.DocumentID,
		DocHash:      req.Hash(),
		LastModified: req.Modified(),
	}, nil
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 消费入库任务。失败的任务在本地按退避重试，次数记在 AttemptCounter 中，
// 进程重启后重新投递的消息会接着之前的次数计数。
type Consumer struct {
	reader    messageReader
	processor TaskProcessor
	attempts  AttemptCounter
	backoff   time.Duration
}

// NewConsumer 启动一个 Kafka 消费者来处理入库任务。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, processor, attempts)
}

func newConsumer(r messageReader, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	if attempts == nil {
		attempts = NewMemoryAttempts()
	}
	return &Consumer{reader: r, processor: processor, attempts: attempts, backoff: time.Second}
}

// Run 持续消费直到 ctx 取消。读取失败时返回错误。
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()
	log.Info("Kafka 消费者已启动")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}
		log.Infof("收到 Kafka 消息: partition %d, offset %d", m.Partition, m.Offset)
		if err := c.handle(ctx, m); err != nil {
			// 只有 ctx 取消会走到这里，offset 未提交，重启后会重新投递
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var task tasks.IngestTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return nil
	}

	key := attemptsKey(task.Request)
	local := int64(0)
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("入库任务处理成功: document_id=%s", task.Request.DocumentID)
			c.attempts.Reset(ctx, key)
			c.commit(ctx, m)
			return nil
		}
		log.Errorf("处理入库任务失败: document_id=%s, error: %v", task.Request.DocumentID, err)

		local++
		attempts, incErr := c.attempts.Incr(ctx, key)
		if incErr != nil {
			// 计数器不可用时退回本地计数
			log.Warnf("记录失败次数失败: %v", incErr)
			attempts = local
		}
		if attempts >= maxAttempts {
			log.Errorf("入库任务多次失败(>=%d)，提交 offset 终止重试: document_id=%s", maxAttempts, task.Request.DocumentID)
			c.commit(ctx, m)
			return nil
		}

		wait := c.backoff * time.Duration(attempts+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

// attemptsKey 同时包含 document_id 与 doc_hash，新内容的任务不继承旧任务的失败次数。
func attemptsKey(req model.IngestRequest) string {
	return fmt.Sprintf("kafka:attempts:%s:%s", req.DocumentID, req.Hash())
}
