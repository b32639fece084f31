package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"

	kafkadal "l2book/biz/dal/kafka"
	"l2book/biz/model"
	"l2book/conf"
)

// DepthFeed mirrors every depth broadcast to kafka so downstream consumers
// (and the dead-letter topic for dropped client messages) see the same stream
// the sessions do. Writes are batched: a flush goes out when the batch fills
// or on the ticker, whichever comes first.
type DepthFeed struct {
	depthWriter      *kafka.Writer
	deadLetterWriter *kafka.Writer
	updates          chan model.LatestDepth
}

type deadLetter struct {
	ClientID uint64 `json:"client_id"`
	Message  string `json:"message"`
}

// NewDepthFeed returns nil when kafka is not configured.
func NewDepthFeed() *DepthFeed {
	if !kafkadal.Enabled() {
		return nil
	}
	kafkaConf := conf.GetConf().Kafka
	f := &DepthFeed{
		depthWriter: kafkadal.GetWriter(kafkaConf.DepthTopic),
		updates:     make(chan model.LatestDepth, 1024),
	}
	if kafkaConf.DeadLetterTopic != "" {
		f.deadLetterWriter = kafkadal.GetWriter(kafkaConf.DeadLetterTopic)
	}
	go f.batchWriter()
	return f
}

// PublishDepth enqueues a depth update for the batch writer. Never blocks the
// caller; the feed is best-effort.
func (f *DepthFeed) PublishDepth(update model.LatestDepth) {
	select {
	case f.updates <- update:
	default:
		hlog.Warnf("[DepthFeed] update queue full, dropping %s@%s", update.Side, update.Price)
	}
}

// PublishDropped records a message dropped on a slow client sink.
func (f *DepthFeed) PublishDropped(clientID model.ClientID, msg model.ToClient) {
	if f.deadLetterWriter == nil {
		return
	}
	payload, err := json.Marshal(deadLetter{ClientID: uint64(clientID), Message: describeMessage(msg)})
	if err != nil {
		return
	}
	if err := f.deadLetterWriter.WriteMessages(context.Background(), kafka.Message{Value: payload}); err != nil {
		hlog.Errorf("[DepthFeed] dead-letter write failed: %v", err)
	}
}

func describeMessage(msg model.ToClient) string {
	out, err := json.Marshal(msg)
	if err != nil {
		return "unencodable"
	}
	return string(out)
}

func (f *DepthFeed) batchWriter() {
	batch := make([]kafka.Message, 0, 100)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case update := <-f.updates:
			payload, err := json.Marshal(update)
			if err != nil {
				hlog.Errorf("[DepthFeed] marshal failed: %v", err)
				continue
			}
			batch = append(batch, kafka.Message{Value: payload})
			if len(batch) >= 100 {
				f.flush(&batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				f.flush(&batch)
			}
		}
	}
}

func (f *DepthFeed) flush(batch *[]kafka.Message) {
	if len(*batch) == 0 {
		return
	}
	if err := f.depthWriter.WriteMessages(context.Background(), (*batch)...); err != nil {
		hlog.Errorf("[DepthFeed] batch write failed: %v", err)
	}
	*batch = (*batch)[:0]
}
