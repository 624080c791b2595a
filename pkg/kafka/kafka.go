package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
)

const AuditTopic = "bookshelf-audit"

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS"`
}

// AuditEvent records a catalog mutation for out-of-process consumers.
type AuditEvent struct {
	ID     string    `json:"id"`
	Action string    `json:"action"`
	BookID int       `json:"bookID"`
	UserID int       `json:"userID"`
	At     time.Time `json:"at"`
}

const (
	ActionBookCreated   = "book_created"
	ActionBookDeleted   = "book_deleted"
	ActionReviewCreated = "review_created"
)

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

// Publisher is the narrow producer surface services depend on.
type Publisher interface {
	Publish(topic string, v any) error
}

type publisher struct {
	producer sarama.SyncProducer
}

func NewPublisher(producer sarama.SyncProducer) Publisher {
	return &publisher{producer: producer}
}

func (p *publisher) Publish(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.StringEncoder(data)}
	if _, _, err = p.producer.SendMessage(msg); err != nil {
		return err
	}
	return nil
}
