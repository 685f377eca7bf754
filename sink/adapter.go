// Package sink defines where compile outcomes go once the pipeline has
// produced them.
package sink

import (
	"fmt"

	pb "codeshift/api/proto/v1"
)

// EmitFn is what a sink calls to tell the pipeline that a frame has been
// durably handled.
type EmitFn func(*pb.Checkpoint)

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error  // driver-specific config struct
	Push(*pb.Frame) error // consume one outcome frame
	Close() error         // idempotent
}

// AckAware is optional; sinks that report durability implement it and the
// pipeline binds its ack callback.
type AckAware interface {
	BindAck(EmitFn)
}

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
