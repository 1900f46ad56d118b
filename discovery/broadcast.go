package discovery

import "github.com/hashicorp/memberlist"

// broadcast implements memberlist.Broadcast for ring-distributed
// full-messages, grounded directly on serf's broadcast.go.
type broadcast struct {
	msg    []byte
	notify chan<- struct{}
}

func (b *broadcast) Invalidates(other memberlist.Broadcast) bool {
	// Full-messages are never superseded by one another mid-flight: each
	// carries a distinct ExchangeID and the coordinator is the only
	// sender, so nothing here stands in for the deduplication serf does
	// for the latest state of a single key.
	return false
}

func (b *broadcast) Message() []byte {
	return b.msg
}

func (b *broadcast) Finished() {
	if b.notify != nil {
		close(b.notify)
	}
}

// messageDelegate implements memberlist.Delegate, routing user messages to
// the ring's custom-event handler and sourcing outbound broadcasts from
// the ring's TransmitLimitedQueue.
type messageDelegate struct {
	ring *Ring
}

func (d *messageDelegate) NodeMeta(limit int) []byte {
	return nil
}

func (d *messageDelegate) NotifyMsg(buf []byte) {
	d.ring.deliverCustom(buf)
}

func (d *messageDelegate) GetBroadcasts(overhead, limit int) [][]byte {
	return d.ring.bc.GetBroadcasts(overhead, limit)
}

func (d *messageDelegate) LocalState(join bool) []byte {
	return nil
}

func (d *messageDelegate) MergeRemoteState(buf []byte, join bool) {}
