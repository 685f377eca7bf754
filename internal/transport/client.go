package transport

import (
	"context"
	"net"

	pb "codeshift/api/proto/v1"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// Conn is a client connection to one ExecutionContext service.
type Conn struct {
	cc  *grpc.ClientConn
	svc pb.ExecutionContextClient
}

// Dial connects to a TCP target. The connection is established lazily on the
// first stream.
func Dial(target string, opts ...grpc.DialOption) (*Conn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Conn{cc: cc, svc: pb.NewExecutionContextClient(cc)}, nil
}

// DialInMemory connects to a server started with StartInMemory.
func DialInMemory(lis *bufconn.Listener, opts ...grpc.DialOption) (*Conn, error) {
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
	opts = append([]grpc.DialOption{grpc.WithContextDialer(dialer)}, opts...)
	return Dial("passthrough:///bufnet", opts...)
}

// Exchange opens one stream, that is one execution context instance.
func (c *Conn) Exchange(ctx context.Context) (pb.ExecutionContext_ExchangeClient, error) {
	return c.svc.Exchange(ctx)
}

func (c *Conn) Close() error {
	if c.cc != nil {
		return c.cc.Close()
	}
	return nil
}
