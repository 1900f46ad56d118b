package exchange

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
)

// ErrPeerGone is returned (or wrapped) by a Transport when the recipient
// is already known to have left the cluster. This is logged and silently
// accepted: the coordinator will observe the node-leave event
// independently.
var ErrPeerGone = errors.New("exchange: peer gone")

// ErrNeedReconnect signals a reconnect-triggering cause (IO failure on a
// reconnect-capable transport, or a client-disconnected signal). The
// kernel restarts the node's client session rather than treating this as
// fatal.
var ErrNeedReconnect = errors.New("exchange: need reconnect")

// IsPeerGone reports whether err indicates the destination has left.
func IsPeerGone(err error) bool {
	return errors.Is(err, ErrPeerGone)
}

// IsNeedReconnect reports whether err should trigger a client reconnect
// rather than exchange failure.
func IsNeedReconnect(err error) bool {
	return errors.Is(err, ErrNeedReconnect)
}

// PeerErrors aggregates per-peer failures reported during
// activate/deactivate (changeGlobalStateExceptions). It is safe for its
// zero value to be used; iteration order is not guaranteed, matching
// go-multierror's semantics.
type PeerErrors struct {
	byNode map[NodeID]error
}

func newPeerErrors() *PeerErrors {
	return &PeerErrors{byNode: make(map[NodeID]error)}
}

// Add records a failure reported by node n.
func (p *PeerErrors) Add(n NodeID, err error) {
	if err == nil {
		return
	}
	if p.byNode == nil {
		p.byNode = make(map[NodeID]error)
	}
	p.byNode[n] = err
}

// Empty reports whether any peer reported a failure.
func (p *PeerErrors) Empty() bool {
	return len(p.byNode) == 0
}

// ErrorsMap renders the collected failures into the full-message's
// errorsMap wire representation.
func (p *PeerErrors) ErrorsMap() map[NodeID]string {
	if p.Empty() {
		return nil
	}
	out := make(map[NodeID]string, len(p.byNode))
	for n, err := range p.byNode {
		out[n] = err.Error()
	}
	return out
}

// Err multierror-joins every recorded failure, for propagation to a local
// state manager.
func (p *PeerErrors) Err() error {
	if p.Empty() {
		return nil
	}
	var result *multierror.Error
	for n, err := range p.byNode {
		result = multierror.Append(result, fmt.Errorf("node %s: %w", n, err))
	}
	return result.ErrorOrNil()
}

// wrapFatal wraps an unexpected failure with the exchange id for context.
func wrapFatal(id ExchangeID, cause error) error {
	return pkgerrors.Wrapf(cause, "exchange %s: fatal", id)
}
