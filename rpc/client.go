package rpc

import (
	"net/rpc"

	"github.com/nodecluster/partex/exchange"
)

// Client is the admin-side net/rpc client.
type Client struct {
	rpcClient *rpc.Client
}

// NewClient returns a new admin client wrapping the given underlying RPC
// client.
func NewClient(rpcClient *rpc.Client) *Client {
	return &Client{rpcClient: rpcClient}
}

// Close closes the underlying RPC client.
func (c *Client) Close() error {
	return c.rpcClient.Close()
}

func (c *Client) Status() (StatusReply, error) {
	var result StatusReply
	err := c.rpcClient.Call("Partex.Status", &StatusArgs{}, &result)
	return result, err
}

func (c *Client) Members() ([]MemberInfo, error) {
	var result []MemberInfo
	err := c.rpcClient.Call("Partex.Members", &MembersArgs{}, &result)
	return result, err
}

func (c *Client) ForceDump() (string, error) {
	var result string
	err := c.rpcClient.Call("Partex.ForceDump", &ForceDumpArgs{}, &result)
	return result, err
}

func (c *Client) ForceLostReset(group string) error {
	var reply struct{}
	return c.rpcClient.Call("Partex.ForceLostReset", &ForceLostResetArgs{Group: exchange.GroupID(group)}, &reply)
}
