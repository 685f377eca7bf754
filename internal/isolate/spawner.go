package isolate

import (
	"context"
	"fmt"
	"sync"

	"codeshift/internal/registry"
	"codeshift/internal/transport"

	"google.golang.org/grpc/metadata"
)

// Spawner creates a fresh context instance bound to d.
type Spawner interface {
	Spawn(ctx context.Context, d *registry.Descriptor) (*Client, error)
}

// InProcess runs contexts on a private in-memory gRPC server. Each Spawn
// opens a new stream, which the worker treats as a new instance.
type InProcess struct {
	srv  *transport.Server
	conn *transport.Conn
	opts []ClientOption
}

func NewInProcess(w *Worker, opts ...ClientOption) (*InProcess, error) {
	srv, lis := transport.StartInMemory(w)
	go func() {
		if err := srv.Serve(); err != nil {
			w.log.Error("in-process context server stopped", "err", err)
		}
	}()
	conn, err := transport.DialInMemory(lis)
	if err != nil {
		srv.Kill()
		return nil, err
	}
	return &InProcess{srv: srv, conn: conn, opts: opts}, nil
}

func (p *InProcess) Spawn(_ context.Context, d *registry.Descriptor) (*Client, error) {
	return openContext(p.conn, d, p.opts)
}

func (p *InProcess) Close() error {
	err := p.conn.Close()
	p.srv.Kill()
	return err
}

// Remote spawns contexts on external `codeshift isolate` servers, one address
// per plugin name. Plugins without an address go to Fallback.
type Remote struct {
	Targets  map[string]string
	Fallback Spawner

	opts  []ClientOption
	mu    sync.Mutex
	conns map[string]*transport.Conn
}

func NewRemote(targets map[string]string, fallback Spawner, opts ...ClientOption) *Remote {
	return &Remote{Targets: targets, Fallback: fallback, opts: opts, conns: map[string]*transport.Conn{}}
}

func (r *Remote) Spawn(ctx context.Context, d *registry.Descriptor) (*Client, error) {
	addr, ok := r.Targets[d.Name]
	if !ok {
		if r.Fallback == nil {
			return nil, fmt.Errorf("isolate: no context server configured for %q", d.Name)
		}
		return r.Fallback.Spawn(ctx, d)
	}
	conn, err := r.conn(addr)
	if err != nil {
		return nil, err
	}
	return openContext(conn, d, r.opts)
}

func (r *Remote) conn(addr string) (*transport.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[addr]; ok {
		return c, nil
	}
	c, err := transport.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("isolate: dial %s: %w", addr, err)
	}
	r.conns[addr] = c
	return c, nil
}

func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for addr, c := range r.conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.conns, addr)
	}
	return first
}

// openContext starts a stream that outlives the caller's ctx; it ends with
// Terminate.
func openContext(conn *transport.Conn, d *registry.Descriptor, opts []ClientOption) (*Client, error) {
	sctx, cancel := context.WithCancel(context.Background())
	sctx = metadata.AppendToOutgoingContext(sctx, PluginHeader, d.Name)
	stream, err := conn.Exchange(sctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("isolate: open context for %q: %w", d.Name, err)
	}
	opts = append(append([]ClientOption(nil), opts...), OnClose(cancel))
	return NewClient(stream, opts...), nil
}
