package kafka

import (
	"context"
	"sync"

	pb "codeshift/api/proto/v1"
	"codeshift/internal/logging"

	"github.com/IBM/sarama"
)

func init() { Register("sarama", func() Adapter { return &SaramaDriver{} }) }

type SaramaDriver struct {
	cfg   Config
	mode  CommitMode
	cl    sarama.Client
	group sarama.ConsumerGroup

	window  *Window
	tracker *Tracker
	acks    chan pb.Checkpoint

	closeOnce sync.Once
}

func (d *SaramaDriver) Configure(config Config) error {
	d.init(config)

	sc := sarama.NewConfig()
	if config.Version != "" {
		ver, err := sarama.ParseKafkaVersion(config.Version)
		if err != nil {
			return err
		}
		sc.Version = ver
	}
	sc.Consumer.Return.Errors = true
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	switch config.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	var err error
	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(config.GroupID, d.cl)
	return err
}

func (d *SaramaDriver) init(config Config) {
	d.cfg, d.mode = config, config.CommitMode
	d.window = NewWindow(config.MaxUnacked)
	d.tracker = NewTracker(config.CommitInterval)
	d.acks = make(chan pb.Checkpoint, config.MaxUnacked)
}

func (d *SaramaDriver) Run(ctx context.Context, emit EmitFunc) error {
	handler := &groupHandler{driver: d, emit: emit}

	go func() {
		for err := range d.group.Errors() {
			logging.L().Warn("sarama-driver: consumer error", "err", err)
		}
	}()
	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *SaramaDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.group != nil {
			err = d.group.Close()
		}
		if d.cl != nil && !d.cl.Closed() {
			_ = d.cl.Close()
		}
	})
	return err
}

// OnAck queues ack for the session's settle loop. It never blocks.
func (d *SaramaDriver) OnAck(ack *pb.Ack) {
	if ack == nil || ack.Checkpoint == nil || d.mode != CommitE2E {
		return
	}
	cp := *ack.Checkpoint
	select {
	case d.acks <- cp:
	default:
		logging.L().Warn("sarama-driver: ack channel full; dropping ack",
			"topic", cp.Topic, "partition", cp.Partition, "offset", cp.Offset)
	}
}

// settle marks the highest contiguous acked offset of cp's partition.
func (d *SaramaDriver) settle(sess sarama.ConsumerGroupSession, cp pb.Checkpoint) {
	mark, advanced, found := d.tracker.Resolve(cp.Topic, cp.Partition, cp.Offset)
	if !found {
		return
	}
	d.window.Release()
	if !advanced {
		return
	}
	sess.MarkOffset(cp.Topic, cp.Partition, mark+1, "")
	if d.tracker.CommitDue() {
		sess.Commit()
	}
}

type groupHandler struct {
	driver *SaramaDriver
	emit   EmitFunc
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.driver.mode != CommitE2E {
		return nil
	}
	go func() {
		for {
			select {
			case cp := <-h.driver.acks:
				h.driver.settle(sess, cp)
			case <-sess.Context().Done():
				return
			}
		}
	}()
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.driver.mode != CommitE2E {
		return nil
	}
	if dropped := h.driver.tracker.Pending(); dropped > 0 {
		logging.L().Info("sarama-driver: rebalance, forgetting unacked frames", "count", dropped)
	}
	h.driver.tracker.Reset()
	h.driver.window.Reset()
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.consume(sess, msg); err != nil {
				return err
			}
		}
	}
}

func (h *groupHandler) consume(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	frame := &pb.Frame{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: toHeaderMap(msg.Headers),
		Ts:      msg.Timestamp,
		Checkpoint: &pb.Checkpoint{
			Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset,
		},
	}

	if h.driver.mode != CommitE2E {
		if err := h.emit(frame); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
		if h.driver.tracker.CommitDue() {
			sess.Commit()
		}
		return nil
	}

	if err := h.driver.window.Acquire(sess.Context()); err != nil {
		return nil
	}
	h.driver.tracker.Track(msg.Topic, msg.Partition, msg.Offset)
	return h.emit(frame)
}

func toHeaderMap(src []*sarama.RecordHeader) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for _, h := range src {
		out[string(h.Key)] = string(h.Value)
	}
	return out
}
