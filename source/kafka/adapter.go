package kafka

import (
	"context"

	pb "codeshift/api/proto/v1"
)

type EmitFunc func(*pb.Frame) error

type Adapter interface {
	Configure(Config) error
	Run(context.Context, EmitFunc) error
	Close() error
}

// AckAware sources are told when a frame's outcome reached a sink.
type AckAware interface {
	OnAck(*pb.Ack)
}
