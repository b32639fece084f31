package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"

	"l2book/conf"
)

var (
	writers sync.Map // map[string]*kafka.Writer
)

// Enabled reports whether a broker list is configured. Every caller must
// check it before asking for a writer or reader.
func Enabled() bool {
	return len(conf.GetConf().Kafka.Brokers) > 0
}

// GetWriter returns the shared writer for a topic, creating it on first use.
func GetWriter(topic string) *kafka.Writer {
	val, ok := writers.Load(topic)
	if ok {
		return val.(*kafka.Writer)
	}
	brokers := conf.GetConf().Kafka.Brokers
	if len(brokers) == 0 {
		panic("kafka brokers not configured")
	}
	writer := &kafka.Writer{
		Addr:  kafka.TCP(brokers...),
		Topic: topic,
		Async: true,
	}
	writers.Store(topic, writer)
	return writer
}

// NewFillsReader builds the consumer for the external matcher's fills topic.
func NewFillsReader() *kafka.Reader {
	kafkaConf := conf.GetConf().Kafka
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: kafkaConf.Brokers,
		Topic:   kafkaConf.FillsTopic,
		GroupID: kafkaConf.FillsGroup,
	})
}

func testConnection() {
	brokers := conf.GetConf().Kafka.Brokers
	conn, err := kafka.DialContext(context.Background(), "tcp", brokers[0])
	if err != nil {
		panic(fmt.Sprintf("failed to connect to kafka: %v", err))
	}
	_ = conn.Close()
}

// CloseAllWriters flushes and closes every writer created so far.
func CloseAllWriters() {
	writers.Range(func(key, value interface{}) bool {
		if w, ok := value.(*kafka.Writer); ok {
			_ = w.Close()
		}
		return true
	})
}

// Init verifies connectivity and pre-creates the writers for the configured
// topics. Skipped entirely when no brokers are configured.
func Init() {
	if !Enabled() {
		hlog.Info("kafka not configured, depth feed disabled")
		return
	}
	testConnection()
	kafkaConf := conf.GetConf().Kafka
	for _, topic := range []string{kafkaConf.DepthTopic, kafkaConf.DeadLetterTopic} {
		if topic != "" {
			GetWriter(topic)
		}
	}
}
