package rpc

import (
	"fmt"
	"math/rand"
	"net"
	"net/rpc"
	"testing"
)

// testClient starts a one-shot server fronting agent and returns a
// connected client.
func testClient(t *testing.T, agent AgentView) *Client {
	var l net.Listener
	for i := 0; i < 500; i++ {
		var err error
		l, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", rand.Int31n(25000)+1024))
		if err == nil {
			break
		}
		l = nil
	}
	if l == nil {
		t.Fatalf("no listener could be made")
	}

	server, err := NewServer(agent, l)
	if err != nil {
		l.Close()
		t.Fatalf("err: %s", err)
	}

	go func() {
		defer l.Close()
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		server.ServeConn(conn)
	}()

	client, err := rpc.Dial("tcp", l.Addr().String())
	if err != nil {
		l.Close()
		t.Fatalf("err: %s", err)
	}
	return NewClient(client)
}

func TestClientStatus(t *testing.T) {
	agent := &fakeAgent{status: StatusReply{State: "DONE", TopologyVer: "3.0"}}
	c := testClient(t, agent)
	defer c.Close()

	got, err := c.Status()
	if err != nil {
		t.Fatalf("err: %s", err)
	}
	if got.State != "DONE" || got.TopologyVer != "3.0" {
		t.Fatalf("bad: %#v", got)
	}
}

func TestClientMembers(t *testing.T) {
	agent := &fakeAgent{members: []MemberInfo{{Name: "n1", Server: true}}}
	c := testClient(t, agent)
	defer c.Close()

	got, err := c.Members()
	if err != nil {
		t.Fatalf("err: %s", err)
	}
	if len(got) != 1 {
		t.Fatalf("bad: %#v", got)
	}
}

func TestClientForceDump(t *testing.T) {
	agent := &fakeAgent{dump: "pending: none"}
	c := testClient(t, agent)
	defer c.Close()

	got, err := c.ForceDump()
	if err != nil {
		t.Fatalf("err: %s", err)
	}
	if got != "pending: none" {
		t.Fatalf("bad: %q", got)
	}
}
