package mq

import (
	"fmt"

	"carbonledger/internal/config"

	"github.com/IBM/sarama"
)

// Producer publishes keyed messages and waits for broker acknowledgement.
type Producer struct {
	producer sarama.SyncProducer
}

func NewProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// NewSaramaConfig returns the producer settings used in production: every
// in-sync replica acknowledges, idempotent writes, successes reported back.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_1_0_0
	return cfg
}

func InitKafka(cfg *config.KafkaConfig) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducer(producer), nil
}

// Send keys the message so every event of one ledger entry lands on the same partition.
func (p *Producer) Send(topic, key, value string) (int32, int64, error) {
	return p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	})
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
