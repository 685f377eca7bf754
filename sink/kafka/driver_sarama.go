// Package kafka publishes compile outcomes to a Kafka topic.
package kafka

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	pb "codeshift/api/proto/v1"
	"codeshift/sink"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int16    `yaml:"required_acks"` // 0,1,-1
}

type driver struct {
	cfg Config
	p   sarama.SyncProducer
	ack sink.EmitFn

	closeOnce sync.Once
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if cfg.Topic == "" || len(cfg.Brokers) == 0 {
		return fmt.Errorf("kafka-sink: brokers and topic are required")
	}
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	p, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	d.use(cfg, p)
	return nil
}

func (d *driver) use(cfg Config, p sarama.SyncProducer) {
	d.cfg, d.p = cfg, p
}

// Push blocks until the broker has the outcome, then acks the frame.
func (d *driver) Push(f *pb.Frame) error {
	msg := &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Value: sarama.ByteEncoder(f.Value),
	}
	if len(f.Key) > 0 {
		msg.Key = sarama.ByteEncoder(f.Key)
	}
	for k, v := range f.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	if _, _, err := d.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	if d.ack != nil && f.Checkpoint != nil {
		d.ack(f.Checkpoint)
	}
	return nil
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

func (d *driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.p != nil {
			err = d.p.Close()
		}
	})
	return err
}
