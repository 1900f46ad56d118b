// Package transport implements peer-to-peer delivery of exchange wire
// messages over persistent, multiplexed yamux sessions. Each pair of
// nodes shares one TCP connection; every
// message is its own yamux stream, so a slow single-message from one peer
// never head-of-line blocks a full-message from another.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/nodecluster/partex/exchange"
)

// AddressBook resolves a node id to a dialable address. A concrete
// implementation is backed by the discovery ring's membership list.
type AddressBook interface {
	Addr(n exchange.NodeID) (string, bool)
}

// Handler processes one inbound message and returns the raw encoded bytes
// of an immediate reply, or nil if none is owed. It mirrors
// exchange.Exchange.Deliver's signature, pre-encoded so Config stays
// decoupled from the exchange package's message types.
type Handler func(from exchange.NodeID, msg []byte) []byte

// Config carries the transport's tunables, the way serf's NetworkTimeout
// bounds every transport operation.
type Config struct {
	BindAddr          string
	LocalNode         exchange.NodeID
	DialTimeout       time.Duration
	StreamOpenTimeout time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		BindAddr:          "0.0.0.0:7946",
		DialTimeout:       10 * time.Second,
		StreamOpenTimeout: 10 * time.Second,
	}
}

// Transport maintains one persistent yamux session per peer and dispatches
// inbound streams to Handler, implementing exchange.Transport via Send.
type Transport struct {
	cfg     *Config
	book    AddressBook
	handler Handler
	log     *log.Logger

	ln net.Listener

	mu       sync.Mutex
	sessions map[exchange.NodeID]*yamux.Session

	shutdown   chan struct{}
	shutdownWg sync.WaitGroup
}

// New constructs a Transport. Call Listen to begin accepting inbound
// connections before any peer can reach this node.
func New(cfg *Config, book AddressBook, handler Handler, logger *log.Logger) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{
		cfg:      cfg,
		book:     book,
		handler:  handler,
		log:      logger,
		sessions: make(map[exchange.NodeID]*yamux.Session),
		shutdown: make(chan struct{}),
	}
}

// Listen binds the transport's address and begins accepting peer
// connections in the background.
func (t *Transport) Listen() error {
	ln, err := net.Listen("tcp", t.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", t.cfg.BindAddr, err)
	}
	t.ln = ln

	t.shutdownWg.Add(1)
	go t.acceptLoop()
	return nil
}

// Shutdown closes the listener and every open peer session.
func (t *Transport) Shutdown() error {
	close(t.shutdown)
	var err error
	if t.ln != nil {
		err = t.ln.Close()
	}
	t.mu.Lock()
	for _, s := range t.sessions {
		s.Close()
	}
	t.sessions = make(map[exchange.NodeID]*yamux.Session)
	t.mu.Unlock()
	t.shutdownWg.Wait()
	return err
}

func (t *Transport) acceptLoop() {
	defer t.shutdownWg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.shutdown:
				return
			default:
				t.log.Printf("[ERR] transport: accept: %v", err)
				continue
			}
		}
		go t.handleConn(conn)
	}
}

func (t *Transport) handleConn(conn net.Conn) {
	sess, err := yamux.Server(conn, yamux.DefaultConfig())
	if err != nil {
		t.log.Printf("[ERR] transport: yamux server handshake: %v", err)
		conn.Close()
		return
	}
	for {
		stream, err := sess.Accept()
		if err != nil {
			return
		}
		go t.handleStream(stream)
	}
}

func (t *Transport) handleStream(stream net.Conn) {
	defer stream.Close()

	from, payload, err := readFrame(stream)
	if err != nil {
		if err != io.EOF {
			t.log.Printf("[ERR] transport: read frame: %v", err)
		}
		return
	}

	var reply []byte
	if t.handler != nil {
		reply = t.handler(from, payload)
	}
	if reply != nil {
		if err := writeFrame(stream, t.cfg.LocalNode, reply); err != nil {
			t.log.Printf("[ERR] transport: write reply: %v", err)
		}
	}
}

// Send implements exchange.Transport: open a stream on the peer's
// persistent session and write one framed message. ErrPeerGone is
// returned when the address book has no entry for node.
func (t *Transport) Send(ctx context.Context, node exchange.NodeID, msg []byte) error {
	sess, err := t.sessionFor(node)
	if err != nil {
		return err
	}

	stream, err := sess.OpenStream()
	if err != nil {
		t.dropSession(node)
		return fmt.Errorf("%w: open stream to %s: %v", exchange.ErrNeedReconnect, node, err)
	}
	defer stream.Close()

	if err := writeFrame(stream, t.cfg.LocalNode, msg); err != nil {
		t.dropSession(node)
		return fmt.Errorf("transport: write to %s: %w", node, err)
	}
	return nil
}

func (t *Transport) sessionFor(node exchange.NodeID) (*yamux.Session, error) {
	t.mu.Lock()
	if sess, ok := t.sessions[node]; ok && !sess.IsClosed() {
		t.mu.Unlock()
		return sess, nil
	}
	t.mu.Unlock()

	addr, ok := t.book.Addr(node)
	if !ok {
		return nil, exchange.ErrPeerGone
	}

	conn, err := net.DialTimeout("tcp", addr, t.cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", exchange.ErrNeedReconnect, addr, err)
	}
	sess, err := yamux.Client(conn, yamux.DefaultConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: yamux client handshake: %v", exchange.ErrNeedReconnect, err)
	}

	t.mu.Lock()
	t.sessions[node] = sess
	t.mu.Unlock()
	return sess, nil
}

func (t *Transport) dropSession(node exchange.NodeID) {
	t.mu.Lock()
	if sess, ok := t.sessions[node]; ok {
		sess.Close()
		delete(t.sessions, node)
	}
	t.mu.Unlock()
}

// readFrame/writeFrame use a minimal length-prefixed framing: [2-byte
// sender-name length][sender name][4-byte payload length][payload].
func writeFrame(w io.Writer, from exchange.NodeID, payload []byte) error {
	name := []byte(from)
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, uint16(len(name))); err != nil {
		return err
	}
	if _, err := bw.Write(name); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(payload))); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	return bw.Flush()
}

func readFrame(r io.Reader) (exchange.NodeID, []byte, error) {
	br := bufio.NewReader(r)
	var nameLen uint16
	if err := binary.Read(br, binary.BigEndian, &nameLen); err != nil {
		return "", nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(br, name); err != nil {
		return "", nil, err
	}
	var payloadLen uint32
	if err := binary.Read(br, binary.BigEndian, &payloadLen); err != nil {
		return "", nil, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(br, payload); err != nil {
		return "", nil, err
	}
	return exchange.NodeID(name), payload, nil
}
