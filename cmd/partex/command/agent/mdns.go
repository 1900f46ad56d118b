package agent

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	mdnsServiceName  = "_partex._tcp"
	mdnsPollInterval = 60 * time.Second
	mdnsQuietPeriod  = 100 * time.Millisecond
)

// bootstrapMDNS advertises this node over mDNS until Shutdown, the way
// command/agent.AgentMDNS advertises serf peers. It does not look up
// peers itself; discoverSeed does that.
type bootstrapMDNS struct {
	logger *log.Logger
	server *mdns.Server
}

func newBootstrapMDNS(nodeName, bindAddr string, port int, logger *log.Logger) (*bootstrapMDNS, error) {
	if logger == nil {
		logger = log.Default()
	}
	bindIP := net.ParseIP(bindAddr)
	if bindIP == nil {
		bindIP = net.IPv4zero
	}

	service := &mdns.MDNSService{
		Instance: nodeName,
		Service:  mdnsServiceName,
		Addr:     bindIP,
		Port:     port,
		Info:     fmt.Sprintf("partex node %s", nodeName),
	}
	if err := service.Init(); err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, err
	}
	return &bootstrapMDNS{logger: logger, server: server}, nil
}

func (m *bootstrapMDNS) Shutdown() error {
	return m.server.Shutdown()
}

// discoverSeed performs one mDNS lookup for an existing peer, returning
// the first address found or "" if the quiet window passes with nothing
// seen. It does not advertise and starts no server; nodeName is unused.
func discoverSeed(nodeName string) (string, error) {
	hosts := make(chan *mdns.ServiceEntry, 32)
	if err := mdns.Lookup(mdnsServiceName, hosts); err != nil {
		return "", fmt.Errorf("agent: mdns lookup: %w", err)
	}

	select {
	case h := <-hosts:
		addr := net.TCPAddr{IP: h.Addr, Port: h.Port}
		return addr.String(), nil
	case <-time.After(mdnsQuietPeriod):
		return "", nil
	}
}
