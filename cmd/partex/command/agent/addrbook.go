package agent

import (
	"fmt"
	"net"

	"github.com/nodecluster/partex/discovery"
	"github.com/nodecluster/partex/exchange"
)

// transportPortOffset is added to a node's gossip port to reach its
// exchange transport listener: every agent binds transport at
// (gossip_port + transportPortOffset) by convention, avoiding a second
// discovery round trip just to learn peer transport addresses.
const transportPortOffset = 100

// ringAddressBook resolves a node id to a transport dial address by
// combining the discovery ring's gossip address with the fixed port
// offset convention, bridging discovery.Ring to transport.AddressBook.
type ringAddressBook struct {
	ring *discovery.Ring
}

func (b *ringAddressBook) Addr(n exchange.NodeID) (string, bool) {
	host, gossipPort, ok := b.ring.MemberAddr(n)
	if !ok {
		return "", false
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", int(gossipPort)+transportPortOffset)), true
}
