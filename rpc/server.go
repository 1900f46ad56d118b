package rpc

import (
	"io"
	"log"
	"net"
	"net/rpc"
)

// Server fronts a running agent with a net/rpc listener.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
}

// NewServer creates a new RPC server for the given agent view and
// listener. It does not start the server; call Run or ServeConn.
func NewServer(agent AgentView, l net.Listener) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Partex", &Endpoint{agent: agent}); err != nil {
		return nil, err
	}
	return &Server{listener: l, rpcServer: rpcServer}, nil
}

// Run blocks accepting connections until the listener is closed.
func (s *Server) Run() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			log.Printf("[ERR] rpc: accept: %s", err)
			return err
		}
		log.Printf("[DEBUG] rpc: accepted connection: %s", conn.RemoteAddr())
		go s.ServeConn(conn)
	}
}

// ServeConn serves a single connection.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	s.rpcServer.ServeConn(conn)
}
