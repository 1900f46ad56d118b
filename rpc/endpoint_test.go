package rpc

import "testing"

func TestEndpointStatus(t *testing.T) {
	agent := &fakeAgent{status: StatusReply{ExchangeID: "1.0/n1/node-join", State: "CRD", Coordinator: "n1"}}
	e := &Endpoint{agent: agent}

	var reply StatusReply
	if err := e.Status(&StatusArgs{}, &reply); err != nil {
		t.Fatalf("err: %s", err)
	}
	if reply.Coordinator != "n1" {
		t.Fatalf("bad coordinator: %q", reply.Coordinator)
	}
}

func TestEndpointMembers(t *testing.T) {
	agent := &fakeAgent{members: []MemberInfo{{Name: "n1", Server: true}, {Name: "n2", Server: true}}}
	e := &Endpoint{agent: agent}

	var reply []MemberInfo
	if err := e.Members(&MembersArgs{}, &reply); err != nil {
		t.Fatalf("err: %s", err)
	}
	if len(reply) != 2 {
		t.Fatalf("bad: %#v", reply)
	}
}

func TestEndpointForceLostReset(t *testing.T) {
	agent := &fakeAgent{}
	e := &Endpoint{agent: agent}

	var reply struct{}
	if err := e.ForceLostReset(&ForceLostResetArgs{Group: "shards"}, &reply); err != nil {
		t.Fatalf("err: %s", err)
	}
	if agent.lastResetArg != "shards" {
		t.Fatalf("bad group: %q", agent.lastResetArg)
	}
}
