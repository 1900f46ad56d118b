package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nodecluster/partex/exchange"
	"github.com/nodecluster/partex/testutil"
)

const testTransportPort = 19191

// mapBook is a minimal AddressBook backed by a fixed map, standing in for
// the discovery ring's membership-derived lookup.
type mapBook struct {
	mu   sync.Mutex
	addr map[exchange.NodeID]string
}

func newMapBook() *mapBook { return &mapBook{addr: make(map[exchange.NodeID]string)} }

func (b *mapBook) set(n exchange.NodeID, addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addr[n] = addr
}

func (b *mapBook) Addr(n exchange.NodeID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.addr[n]
	return a, ok
}

func newTestTransport(t *testing.T, name exchange.NodeID, handler Handler) (*Transport, string, func()) {
	t.Helper()
	ip, returnFn := testutil.TakeIP()
	addr := fmt.Sprintf("%s:%d", ip.String(), testTransportPort)

	cfg := &Config{
		BindAddr:          addr,
		LocalNode:         name,
		DialTimeout:       2 * time.Second,
		StreamOpenTimeout: 2 * time.Second,
	}
	tr := New(cfg, newMapBook(), handler, testutil.TestLogger(t))
	if err := tr.Listen(); err != nil {
		returnFn()
		t.Fatalf("Listen: %v", err)
	}
	return tr, addr, returnFn
}

type delivered struct {
	from    exchange.NodeID
	payload string
}

func TestSendDeliversFrameToHandler(t *testing.T) {
	received := make(chan delivered, 1)

	serverTr, serverAddr, doneServer := newTestTransport(t, "n2", func(from exchange.NodeID, msg []byte) []byte {
		received <- delivered{from, string(msg)}
		return []byte("ack")
	})
	defer doneServer()
	defer serverTr.Shutdown()

	clientTr, _, doneClient := newTestTransport(t, "n1", nil)
	defer doneClient()
	defer clientTr.Shutdown()

	book := clientTr.book.(*mapBook)
	book.set("n2", serverAddr)

	if err := clientTr.Send(context.Background(), "n2", []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if got.from != "n1" {
			t.Fatalf("from = %s, want n1", got.from)
		}
		if got.payload != "hello" {
			t.Fatalf("payload = %q, want hello", got.payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("handler never invoked")
	}
}

func TestSendToUnknownNodeReturnsErrPeerGone(t *testing.T) {
	clientTr, _, done := newTestTransport(t, "n1", nil)
	defer done()
	defer clientTr.Shutdown()

	err := clientTr.Send(context.Background(), "ghost", []byte("x"))
	if err != exchange.ErrPeerGone {
		t.Fatalf("err = %v, want ErrPeerGone", err)
	}
}

func TestSessionReuseAcrossMultipleSends(t *testing.T) {
	var mu sync.Mutex
	count := 0

	serverTr, serverAddr, doneServer := newTestTransport(t, "n2", func(from exchange.NodeID, msg []byte) []byte {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	defer doneServer()
	defer serverTr.Shutdown()

	clientTr, _, doneClient := newTestTransport(t, "n1", nil)
	defer doneClient()
	defer clientTr.Shutdown()

	book := clientTr.book.(*mapBook)
	book.set("n2", serverAddr)

	for i := 0; i < 3; i++ {
		if err := clientTr.Send(context.Background(), "n2", []byte("ping")); err != nil {
			t.Fatalf("Send #%d: %v", i, err)
		}
	}

	clientTr.mu.Lock()
	sessions := len(clientTr.sessions)
	clientTr.mu.Unlock()
	if sessions != 1 {
		t.Fatalf("sessions = %d, want 1 (reused across sends)", sessions)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		c := count
		mu.Unlock()
		if c == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("handler invoked %d times, want 3", c)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
