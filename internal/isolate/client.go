package isolate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	pb "codeshift/api/proto/v1"
	"codeshift/internal/hub"
	"codeshift/internal/logging"
	"codeshift/internal/script"
	"codeshift/internal/telemetry"

	"google.golang.org/protobuf/types/known/structpb"
)

// ErrTerminated is returned for requests made on, or pending in, a context
// the host has terminated.
var ErrTerminated = errors.New("isolate: context terminated")

// RemoteError is a failure reported by the context in an error envelope.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("isolated %s: %s", e.Op, e.Message)
}

// Stream is the host end of an Exchange stream.
type Stream interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	CloseSend() error
}

// Client is the host handle of one isolated context instance. Requests may be
// issued concurrently; responses are matched by id only.
type Client struct {
	stream  Stream
	hub     *hub.Hub[*pb.Envelope]
	nextID  func() string
	log     *slog.Logger
	metrics *telemetry.Metrics

	sendMu sync.Mutex

	mu         sync.Mutex
	terminated bool
	recvErr    error

	done    chan struct{}
	once    sync.Once
	onClose []func()
}

type ClientOption func(*Client)

// WithIDGenerator replaces the per-client counter. Generated ids must be
// unique among the client's in-flight requests.
func WithIDGenerator(fn func() string) ClientOption { return func(c *Client) { c.nextID = fn } }

func WithClientLogger(l *slog.Logger) ClientOption { return func(c *Client) { c.log = l } }

func WithClientMetrics(m *telemetry.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// OnClose runs fn once the context is gone, after Terminate or stream loss.
func OnClose(fn func()) ClientOption {
	return func(c *Client) { c.onClose = append(c.onClose, fn) }
}

// NewClient takes ownership of stream and starts dispatching its messages.
func NewClient(stream Stream, opts ...ClientOption) *Client {
	var counter atomic.Uint64
	c := &Client{
		stream: stream,
		hub:    hub.New[*pb.Envelope](),
		nextID: func() string { return strconv.FormatUint(counter.Add(1), 10) },
		log:    logging.Nop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.ContextStarted()
	go c.receive()
	return c
}

// On subscribes to every incoming message of the given type ("run",
// "loaded", "error").
func (c *Client) On(msgType string, fn func(*pb.Envelope)) *hub.Handler[*pb.Envelope] {
	return c.hub.On(msgType, fn)
}

func (c *Client) Off(msgType string, h *hub.Handler[*pb.Envelope]) {
	c.hub.Off(msgType, h)
}

// LoadScript asks the context to load url into its own scope and returns
// once the script has executed there.
func (c *Client) LoadScript(ctx context.Context, url string, method script.Method) error {
	if method == "" {
		method = script.MethodImport
	}
	_, err := c.request(ctx, &pb.Envelope{Type: pb.TypeLoadScript, URL: url, Method: string(method)})
	return err
}

// Run invokes the bound compile function with {code, options} and returns its
// result.
func (c *Client) Run(ctx context.Context, code string, options map[string]any) (any, error) {
	resp, err := c.request(ctx, &pb.Envelope{Type: pb.TypeRun, Code: code, Options: options})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) request(ctx context.Context, msg *pb.Envelope) (*pb.Envelope, error) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return nil, ErrTerminated
	}
	c.mu.Unlock()

	msg.ID = c.nextID()
	if c.hub.Has(msg.ID) {
		c.log.Warn("request id already pending", "type", msg.Type, "id", msg.ID)
	}
	ch := make(chan *pb.Envelope, 1)
	var reg *hub.Handler[*pb.Envelope]
	reg = c.hub.On(msg.ID, func(resp *pb.Envelope) {
		c.hub.Off(msg.ID, reg)
		select {
		case ch <- resp:
		default:
		}
	})

	c.metrics.RequestSent()
	defer c.metrics.RequestDone()

	if err := c.send(msg); err != nil {
		c.hub.Off(msg.ID, reg)
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Type == pb.TypeError {
			return nil, &RemoteError{Op: msg.Type, Message: resp.Error}
		}
		return resp, nil
	case <-ctx.Done():
		c.hub.Off(msg.ID, reg)
		return nil, ctx.Err()
	case <-c.done:
		c.hub.Off(msg.ID, reg)
		return nil, c.closedErr()
	}
}

func (c *Client) send(msg *pb.Envelope) error {
	s, err := msg.ToStruct()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	select {
	case <-c.done:
		return c.closedErr()
	default:
	}
	if err := c.stream.Send(s); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	c.log.Debug("request sent", "type", msg.Type, "id", msg.ID)
	return nil
}

func (c *Client) receive() {
	for {
		s, err := c.stream.Recv()
		if err != nil {
			c.mu.Lock()
			if !c.terminated {
				c.recvErr = err
			}
			c.mu.Unlock()
			c.close()
			return
		}
		msg, err := pb.EnvelopeFromStruct(s)
		if err != nil {
			c.log.Warn("dropping malformed message", "err", err)
			continue
		}
		c.log.Debug("response received", "type", msg.Type, "id", msg.ID)
		c.hub.Emit(msg.Type, msg)
		if msg.ID != "" {
			c.hub.Emit(msg.ID, msg)
		}
	}
}

// Terminate ends the context. Pending and later requests fail with
// ErrTerminated. Terminate is idempotent.
func (c *Client) Terminate() error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return nil
	}
	c.terminated = true
	c.mu.Unlock()

	c.sendMu.Lock()
	err := c.stream.CloseSend()
	c.sendMu.Unlock()
	c.close()
	return err
}

// Done is closed once the context is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.metrics.ContextStopped()
		for _, fn := range c.onClose {
			fn()
		}
	})
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated || c.recvErr == nil {
		return ErrTerminated
	}
	return fmt.Errorf("isolate: context lost: %w", c.recvErr)
}
