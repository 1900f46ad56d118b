package command

import (
	"flag"
	"net/rpc"

	prpc "github.com/nodecluster/partex/rpc"
)

// RPCAddrFlag returns a pointer to a string populated with the RPC address
// once the given flag set is parsed, grounded on command/rpc.go's
// RPCAddrFlag.
func RPCAddrFlag(f *flag.FlagSet) *string {
	return f.String("rpc-addr", "127.0.0.1:7473", "RPC address of the partex agent")
}

// RPCClient dials addr and returns a partex admin client.
func RPCClient(addr string) (*prpc.Client, error) {
	conn, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return prpc.NewClient(conn), nil
}
