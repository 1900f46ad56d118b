package rpc

import "github.com/nodecluster/partex/exchange"

// fakeAgent is a minimal AgentView stand-in for exercising the RPC
// endpoint and client without a running transport/discovery stack.
type fakeAgent struct {
	status       StatusReply
	members      []MemberInfo
	dump         string
	lastResetArg exchange.GroupID
	resetErr     error
}

func (f *fakeAgent) Status() StatusReply       { return f.status }
func (f *fakeAgent) Members() []MemberInfo     { return f.members }
func (f *fakeAgent) ForceDump() string         { return f.dump }
func (f *fakeAgent) ForceLostReset(g exchange.GroupID) error {
	f.lastResetArg = g
	return f.resetErr
}
