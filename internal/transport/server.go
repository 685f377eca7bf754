package transport

import (
	"fmt"
	"net"

	pb "codeshift/api/proto/v1"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

// Server hosts an ExecutionContext service on a listener.
type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// StartServer listens on addr ("host:port" or ":port").
func StartServer(addr string, svc pb.ExecutionContextServer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return newServer(lis, svc, opts...), nil
}

// StartInMemory serves svc on a bufconn listener. Dial it with DialInMemory.
func StartInMemory(svc pb.ExecutionContextServer, opts ...grpc.ServerOption) (*Server, *bufconn.Listener) {
	lis := bufconn.Listen(bufSize)
	return newServer(lis, svc, opts...), lis
}

func newServer(lis net.Listener, svc pb.ExecutionContextServer, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc: grpc.NewServer(opts...),
		lis:  lis,
	}
	pb.RegisterExecutionContextServer(s.grpc, svc)
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// Kill stops without waiting for open streams.
func (s *Server) Kill() {
	s.grpc.Stop()
}
