// Package stdout prints compile outcomes, one JSON line per frame.
package stdout

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	pb "codeshift/api/proto/v1"
	"codeshift/sink"
)

type Config struct {
	DelayMS       int  `yaml:"delay_ms"`        // artificial per-frame delay
	PrintCounter  bool `yaml:"print_counter"`   // add a sequence number
	BatchSize     int  `yaml:"ack_batch_size"`  // 0 = ack every frame
	FlushMS       int  `yaml:"ack_flush_ms"`    // 0 = no timer flush
	PrintValue    bool `yaml:"print_value"`     // include the outcome body
	ValueMaxBytes int  `yaml:"value_max_bytes"` // 0 = no truncation

	Out io.Writer `yaml:"-"`
}

type line struct {
	Seq       uint64          `json:"seq,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Partition int32           `json:"partition"`
	Offset    int64           `json:"offset"`
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Raw       string          `json:"raw,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

type driver struct {
	cfg Config
	ack sink.EmitFn
	seq atomic.Uint64

	outMu sync.Mutex

	mu      sync.Mutex // guards pending and timer
	pending []*pb.Checkpoint
	timer   *time.Timer
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(f *pb.Frame) error {
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}
	if err := d.print(f); err != nil {
		return err
	}
	if f.Checkpoint == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, f.Checkpoint)
	if (d.cfg.BatchSize <= 1 && d.cfg.FlushMS == 0) || (d.cfg.BatchSize > 0 && len(d.pending) >= d.cfg.BatchSize) {
		d.flushLocked()
		return nil
	}
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(time.Duration(d.cfg.FlushMS)*time.Millisecond, d.timerFlush)
	}
	return nil
}

func (d *driver) print(f *pb.Frame) error {
	l := line{Key: string(f.Key)}
	if cp := f.Checkpoint; cp != nil {
		l.Topic, l.Partition, l.Offset = cp.Topic, cp.Partition, cp.Offset
	}
	if d.cfg.PrintCounter {
		l.Seq = d.seq.Add(1)
	}
	if d.cfg.PrintValue {
		v := f.Value
		if n := d.cfg.ValueMaxBytes; n > 0 && len(v) > n {
			v, l.Truncated = v[:n], true
		}
		if !l.Truncated && json.Valid(v) {
			l.Value = v
		} else {
			l.Raw = string(v)
		}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	d.outMu.Lock()
	defer d.outMu.Unlock()
	_, err = d.cfg.Out.Write(append(b, '\n'))
	return err
}

func (d *driver) Close() error {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
	return nil
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

func (d *driver) timerFlush() {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
}

// must be called with d.mu held
func (d *driver) flushLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len(d.pending) == 0 || d.ack == nil {
		return
	}
	for _, cp := range d.pending {
		d.ack(cp)
	}
	d.pending = d.pending[:0]
}

func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
