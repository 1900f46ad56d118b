// Package rpc puts a net/rpc server in front of the exchange worker so an
// operator can inspect and nudge a running node without speaking the wire
// protocol itself.
package rpc

import "github.com/nodecluster/partex/exchange"

// MemberInfo is the admin-facing view of one cluster member.
type MemberInfo struct {
	Name   string
	Server bool
}

// StatusReply answers "exchange status": the current (or most recently
// finished) exchange's identity, role and progress.
type StatusReply struct {
	ExchangeID   string
	State        string
	Coordinator  string
	Remaining    []string
	TopologyVer  string
	LastFinished string
}

// AgentView is the slice of the running agent the RPC endpoint needs. It
// is satisfied by cmd/partex/command/agent.Agent; kept as an interface
// here so rpc does not import the agent package and create a cycle.
type AgentView interface {
	Status() StatusReply
	Members() []MemberInfo
	ForceDump() string
	ForceLostReset(group exchange.GroupID) error
}

// Endpoint is the net/rpc receiver registered under the "Partex" name.
type Endpoint struct {
	agent AgentView
}

// StatusArgs/MembersArgs are empty placeholders: net/rpc requires a
// non-nil argument value even for parameterless calls.
type StatusArgs struct{}
type MembersArgs struct{}
type ForceDumpArgs struct{}

// ForceLostResetArgs names the cache group whose LOST partitions should
// be cleared after an operator re-establishes ownership out of band.
type ForceLostResetArgs struct {
	Group exchange.GroupID
}

func (e *Endpoint) Status(args *StatusArgs, reply *StatusReply) error {
	*reply = e.agent.Status()
	return nil
}

func (e *Endpoint) Members(args *MembersArgs, reply *[]MemberInfo) error {
	*reply = e.agent.Members()
	return nil
}

func (e *Endpoint) ForceDump(args *ForceDumpArgs, reply *string) error {
	*reply = e.agent.ForceDump()
	return nil
}

func (e *Endpoint) ForceLostReset(args *ForceLostResetArgs, reply *struct{}) error {
	return e.agent.ForceLostReset(args.Group)
}
