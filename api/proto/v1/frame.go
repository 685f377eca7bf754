package pb

import "time"

// Checkpoint locates a consumed record so it can be committed once handled.
type Checkpoint struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Frame is one record moving from a source through compile to a sink.
type Frame struct {
	Key        []byte
	Value      []byte
	Headers    map[string]string
	Ts         time.Time
	Checkpoint *Checkpoint
}

// Ack tells a source that the frame behind Checkpoint reached its sink.
type Ack struct {
	Checkpoint *Checkpoint
}
