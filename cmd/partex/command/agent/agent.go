// Package agent wires the exchange, discovery and transport packages into
// a single running process, the way command/agent.Agent wraps a *serf.Serf.
package agent

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/hashicorp/go-uuid"

	"github.com/nodecluster/partex/discovery"
	"github.com/nodecluster/partex/exchange"
	"github.com/nodecluster/partex/rpc"
	"github.com/nodecluster/partex/transport"
)

// Agent couples a discovery ring and a peer transport to a running
// sequence of Exchange instances: one per settled discovery event,
// strictly ordered by topology version. It implements
// rpc.AgentView so the admin rpc.Server can front it directly.
type Agent struct {
	conf *Config
	log  *log.Logger

	ring      *discovery.Ring
	transport *transport.Transport
	rpcServer *rpc.Server
	mdnsSrv   *bootstrapMDNS

	deps *exchange.Dependencies

	// instanceID disambiguates successive process restarts under the same
	// NodeName in log output, the way serf's query ids are minted fresh
	// per invocation.
	instanceID string

	mu       sync.Mutex
	current  *exchange.Exchange
	topVer   exchange.TopologyVersion
	shutdown chan struct{}
	shutdownOnce sync.Once
}

// Create builds an Agent from conf but does not yet start any network
// listeners, mirroring command/agent.Create's two-step
// construct-then-Start split.
func Create(conf *Config, deps *exchange.Dependencies, logger *log.Logger) (*Agent, error) {
	if logger == nil {
		out, err := setupLogOutput(conf)
		if err != nil {
			return nil, err
		}
		logger = log.New(out, "", log.LstdFlags)
	}
	if conf.NodeName == "" {
		return nil, fmt.Errorf("agent: node_name is required")
	}

	instanceID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("agent: generate instance id: %w", err)
	}

	a := &Agent{
		conf:       conf,
		log:        logger,
		deps:       deps,
		instanceID: instanceID,
		shutdown:   make(chan struct{}),
	}
	logger.Printf("[INFO] agent: starting instance %s as node %s", instanceID, conf.NodeName)

	disco := conf.Disco
	if disco == nil {
		disco = discovery.DefaultConfig()
	}
	disco.NodeName = conf.NodeName
	if conf.BindAddr != "" && disco.MemberlistConfig != nil {
		host, port, err := net.SplitHostPort(conf.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("agent: parse bind_addr %q: %w", conf.BindAddr, err)
		}
		portNum, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("agent: parse bind_addr %q: %w", conf.BindAddr, err)
		}
		disco.MemberlistConfig.BindAddr = host
		disco.MemberlistConfig.BindPort = portNum
	}

	ring, err := discovery.NewRing(disco, logger, a.onCustomEvent)
	if err != nil {
		return nil, fmt.Errorf("agent: create discovery ring: %w", err)
	}
	a.ring = ring

	xportCfg := conf.Xport
	if xportCfg == nil {
		xportCfg = transport.DefaultConfig()
	}
	xportCfg.BindAddr = conf.TransportAddr
	xportCfg.LocalNode = exchange.NodeID(conf.NodeName)
	a.transport = transport.New(xportCfg, &ringAddressBook{ring: ring}, a.handleInbound, logger)

	if a.deps == nil {
		a.deps = &exchange.Dependencies{}
	}
	a.deps.Discovery = ring
	a.deps.Transport = a.transport

	return a, nil
}

// Start begins accepting transport connections, joins the discovery ring
// (optionally via an mDNS-discovered seed) and launches the event-ingest
// loop, mirroring command/agent.Agent.Start's serf.Create-then-Join
// sequence.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.transport.Listen(); err != nil {
		return err
	}

	addrs := a.conf.StartJoin
	if a.conf.BootstrapMDNS {
		host, port, err := net.SplitHostPort(a.conf.BindAddr)
		if err != nil {
			return fmt.Errorf("agent: parse bind_addr %q: %w", a.conf.BindAddr, err)
		}
		portNum, _ := strconv.Atoi(port)
		mdnsSrv, err := newBootstrapMDNS(a.conf.NodeName, host, portNum, a.log)
		if err != nil {
			a.log.Printf("[WARN] agent: mdns advertise: %v", err)
		} else {
			a.mdnsSrv = mdnsSrv
		}

		if len(addrs) == 0 {
			if seed, err := discoverSeed(a.conf.NodeName); err == nil && seed != "" {
				addrs = []string{seed}
			} else if err != nil {
				a.log.Printf("[WARN] agent: mdns bootstrap: %v", err)
			}
		}
	}
	if len(addrs) > 0 {
		n, err := a.ring.Join(addrs)
		if err != nil {
			a.log.Printf("[WARN] agent: join: %v", err)
		} else {
			a.log.Printf("[INFO] agent: joined, %d nodes contacted", n)
		}
	}

	ln, err := rpcListener(a.conf.RPCAddr)
	if err != nil {
		return fmt.Errorf("agent: rpc listen: %w", err)
	}
	server, err := rpc.NewServer(a, ln)
	if err != nil {
		return err
	}
	a.rpcServer = server
	go func() {
		if err := server.Run(); err != nil {
			a.log.Printf("[DEBUG] agent: rpc server stopped: %v", err)
		}
	}()

	go a.ingestLoop(ctx)
	return nil
}

// Shutdown leaves the ring, stops the transport and closes the rpc
// listener.
func (a *Agent) Shutdown() error {
	var ringErr, xportErr error
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
		if a.mdnsSrv != nil {
			a.mdnsSrv.Shutdown()
		}
		ringErr = a.ring.Shutdown()
		xportErr = a.transport.Shutdown()
	})
	if ringErr != nil {
		return ringErr
	}
	return xportErr
}

// ingestLoop spawns one Exchange per settled discovery event, holding
// a.current until that exchange completes so inbound wire messages are
// always routed to the exchange currently running.
func (a *Agent) ingestLoop(ctx context.Context) {
	for {
		select {
		case evt, ok := <-a.ring.Events():
			if !ok {
				return
			}
			a.runExchange(ctx, evt)
		case <-a.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) runExchange(ctx context.Context, evt exchange.InitialEvent) {
	a.mu.Lock()
	a.topVer.Major++
	id := exchange.ExchangeID{TopVer: a.topVer, InitiatorNodeID: evt.NodeID, EventKind: evt.Kind}
	prevTopVer := a.topVer
	prevTopVer.Major--
	local := exchange.NodeID(a.conf.NodeName)
	snap := evt.Snapshot
	if snap == nil {
		snap = a.ring.Snapshot()
	}
	ex := exchange.New(id, evt, snap, local, prevTopVer, a.deps, a.conf.Exchange, a.log)
	a.current = ex
	a.mu.Unlock()

	if err := ex.Run(ctx); err != nil {
		a.log.Printf("[ERR] agent: exchange %s: %v", id, err)
		return
	}
	select {
	case <-ex.Done():
	case <-a.shutdown:
	case <-ctx.Done():
	}
}

// onCustomEvent is the discovery ring's callback for decoded custom
// intra-version messages. A centralized-affinity coordinator publishes
// its decided full-message as an EventAffinityChange custom event (see
// exchange.distributeCentralized); every other kind is logged only, since
// this agent has no cache-batch/snapshot feature to act on it.
func (a *Agent) onCustomEvent(from exchange.NodeID, msg *exchange.CustomMessage) {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur == nil {
		return
	}

	if msg.Kind != exchange.EventAffinityChange {
		a.log.Printf("[DEBUG] agent: custom event kind=%s from=%s", msg.Kind, from)
		return
	}

	full, err := exchange.DecodeFullMessage(msg.Payload)
	if err != nil {
		a.log.Printf("[ERR] agent: decode ring-published full-message from %s: %v", from, err)
		return
	}
	cur.OnFullMessage(context.Background(), from, full)
}

// handleInbound is the transport.Handler bridging inbound wire frames to
// the exchange currently running.
func (a *Agent) handleInbound(from exchange.NodeID, msg []byte) []byte {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur == nil {
		return nil
	}

	full, err := cur.Deliver(context.Background(), from, msg)
	if err != nil {
		a.log.Printf("[ERR] agent: deliver from %s: %v", from, err)
		return nil
	}
	if full == nil {
		return nil
	}
	buf, err := exchange.EncodeFullMessage(full)
	if err != nil {
		a.log.Printf("[ERR] agent: encode reply full-message: %v", err)
		return nil
	}
	return buf
}

// rpcListener binds the admin net/rpc address, mirroring
// command/agent.Create's own net.Listen("tcp", config.RPCAddr) call.
func rpcListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Status implements rpc.AgentView.
func (a *Agent) Status() rpc.StatusReply {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur == nil {
		return rpc.StatusReply{}
	}

	reply := rpc.StatusReply{
		ExchangeID:  cur.ID().String(),
		State:       cur.State().String(),
		Coordinator: string(cur.Coordinator()),
		TopologyVer: cur.ID().TopVer.String(),
	}
	if fs := cur.FinishState(); fs != nil {
		reply.LastFinished = fs.ResultTopVer.String()
	}
	return reply
}

// Members implements rpc.AgentView.
func (a *Agent) Members() []rpc.MemberInfo {
	snap := a.ring.Snapshot()
	out := make([]rpc.MemberInfo, 0, len(snap.ServerNodes))
	for _, n := range snap.ServerNodes {
		out = append(out, rpc.MemberInfo{Name: string(n), Server: true})
	}
	return out
}

// ForceDump implements rpc.AgentView, returning a one-line summary of the
// currently running exchange: its id, state and coordinator.
func (a *Agent) ForceDump() string {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur == nil {
		return "no exchange currently running"
	}
	return fmt.Sprintf("exchange=%s state=%s coordinator=%s", cur.ID(), cur.State(), cur.Coordinator())
}

// ForceLostReset implements rpc.AgentView, resetting lost-partition marks
// for the named group, the manual recovery escape hatch for a LOST
// partition that has regained a legitimate owner out of band.
func (a *Agent) ForceLostReset(group exchange.GroupID) error {
	if a.deps.Groups == nil {
		return fmt.Errorf("agent: no group topologies configured")
	}
	for _, g := range a.deps.Groups() {
		if g.Group() == group {
			g.ResetLostPartitions(a.topVer)
			return nil
		}
	}
	return fmt.Errorf("agent: unknown group %s", group)
}
