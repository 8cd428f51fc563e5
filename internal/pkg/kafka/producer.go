package kafka

import (
	"Mentora/internal/api/config"
	log "log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

const (
	EventMessageSent         = "message_sent"
	EventConversationCreated = "conversation_created"
)

// ChatEvent 会话域事件，投递给下游消费方（统计、审计等）
// 与主操作解耦：发送失败只记录日志，绝不影响业务结果。
type ChatEvent struct {
	Type           string    `json:"type"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type EventProducer interface {
	Emit(event *ChatEvent)
	Close() error
}

type eventProducerImpl struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewEventProducer 创建异步生产者并启动错误回收协程
func NewEventProducer(cfg config.KafkaConfig) (EventProducer, error) {
	c := newSaramaConfig(cfg)

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, c)
	if err != nil {
		return nil, err
	}

	p := &eventProducerImpl{
		producer: producer,
		topic:    cfg.EventTopic,
	}

	go func() {
		for perr := range producer.Errors() {
			log.Error("Kafka event delivery failed", "topic", perr.Msg.Topic, "err", perr.Err)
		}
	}()

	return p, nil
}

// Emit 投递事件；以会话 ID 为 Key 保证同会话事件落在同一分区
func (s *eventProducerImpl) Emit(event *ChatEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to marshal chat event", "err", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(event.ConversationID, 10)),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case s.producer.Input() <- msg:
	default:
		log.Warn("Kafka producer buffer full, event dropped", "type", event.Type)
	}
}

func (s *eventProducerImpl) Close() error {
	return s.producer.Close()
}
