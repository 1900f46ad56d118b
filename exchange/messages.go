package exchange

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/codec"
)

// wireType tags an encoded exchange message the way serf's messageType
// tags gossip messages: one leading byte, then a msgpack body.
type wireType uint8

const (
	wireSingleMessage wireType = iota
	wireFullMessage
	wireSingleRequest
	wireRestoreReply
)

// PartitionCounter is a node's reported (init, applied) update counter
// pair for one partition.
type PartitionCounter struct {
	Init    uint64
	Applied uint64
}

// GroupPartitions is one cache group's reported partition states and
// update counter for the single-message collect phase.
type GroupPartitions struct {
	States        map[int]PartitionState
	UpdateCounter uint64
}

// SingleMessage is sent by each non-coordinator server (and by clients) to
// the coordinator, carrying the sender's local partition map and update
// counters.
type SingleMessage struct {
	ExchID ExchangeID
	Client bool

	Partitions              map[GroupID]GroupPartitions
	PartitionUpdateCounters map[GroupID]map[int]PartitionCounter
	PartitionHistory        map[GroupID]map[int]uint64 // optional historical counters

	LastVersion uint64

	Error string

	CacheGroupsAffinityRequest []GroupID

	RestoreState     bool
	RestoreExchID    *ExchangeID
	FinishMessage    bool
}

// FullPartitionMap is the coordinator's decided owner set for one group.
type FullPartitionMap struct {
	Owners map[int][]NodeID
	States map[int]PartitionState
}

// FullMessage is the coordinator's decision, sent to every server (and
// distributed to clients), carrying the resulting ownership and the new
// topology version.
type FullMessage struct {
	ExchID ExchangeID

	Partitions      map[GroupID]FullPartitionMap
	UpdateCounters  map[GroupID]map[int]uint64
	PartHistSupply  map[GroupID]map[int]HistorySupplier
	PartsToReload   map[NodeID]map[GroupID][]int

	LastVersion uint64

	ResultTopVer *TopologyVersion

	IdealAffinityDiff map[GroupID]map[int][]NodeID

	ErrorsMap map[NodeID]string

	JoinedNodeAffinity map[GroupID]map[int][]NodeID
}

// copy returns a deep-enough copy of the full message suitable for
// re-stamping with a different ExchangeID when replaying to a late
// sender.
func (m *FullMessage) copy() *FullMessage {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

// withExchID returns a copy of the message re-stamped with id, used when
// answering late single-messages from FinishState.
func (m *FullMessage) withExchID(id ExchangeID) *FullMessage {
	cp := m.copy()
	cp.ExchID = id
	return cp
}

// SingleRequest is sent by a newly-elevated coordinator to every surviving
// server during failover to reconstruct exchange state.
type SingleRequest struct {
	ExchID        ExchangeID
	RestoreState  bool
	RestoreExchID *ExchangeID
}

// RestoreReply answers a SingleRequest during coordinator failover.
// Full is set only by a node whose exchange has already finished;
// otherwise Single carries the replying node's local single-message so the
// new coordinator can fold it into its own collect phase without asking
// again.
type RestoreReply struct {
	ExchID ExchangeID
	Single *SingleMessage
	Full   *FullMessage
}

var msgpackHandle codec.MsgpackHandle

// encodeMessage mirrors serf's encodeMessage: one type byte followed by a
// msgpack-encoded body.
func encodeMessage(t wireType, msg interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(uint8(t))
	enc := codec.NewEncoder(buf, &msgpackHandle)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMessage mirrors serf's decodeMessage: decodes the msgpack body
// into out. The caller has already stripped and checked the type byte.
func decodeMessage(buf []byte, out interface{}) error {
	return codec.NewDecoder(bytes.NewReader(buf), &msgpackHandle).Decode(out)
}

// EncodeSingleMessage serializes a SingleMessage for transport send.
func EncodeSingleMessage(m *SingleMessage) ([]byte, error) {
	return encodeMessage(wireSingleMessage, m)
}

// DecodeSingleMessage parses bytes produced by EncodeSingleMessage. buf
// must include the leading type byte.
func DecodeSingleMessage(buf []byte) (*SingleMessage, error) {
	if len(buf) < 1 || wireType(buf[0]) != wireSingleMessage {
		return nil, fmt.Errorf("exchange: not a single-message")
	}
	var m SingleMessage
	if err := decodeMessage(buf[1:], &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeFullMessage serializes a FullMessage for transport send.
func EncodeFullMessage(m *FullMessage) ([]byte, error) {
	return encodeMessage(wireFullMessage, m)
}

// DecodeFullMessage parses bytes produced by EncodeFullMessage.
func DecodeFullMessage(buf []byte) (*FullMessage, error) {
	if len(buf) < 1 || wireType(buf[0]) != wireFullMessage {
		return nil, fmt.Errorf("exchange: not a full-message")
	}
	var m FullMessage
	if err := decodeMessage(buf[1:], &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeSingleRequest serializes a SingleRequest for transport send.
func EncodeSingleRequest(m *SingleRequest) ([]byte, error) {
	return encodeMessage(wireSingleRequest, m)
}

// DecodeSingleRequest parses bytes produced by EncodeSingleRequest.
func DecodeSingleRequest(buf []byte) (*SingleRequest, error) {
	if len(buf) < 1 || wireType(buf[0]) != wireSingleRequest {
		return nil, fmt.Errorf("exchange: not a single-request")
	}
	var m SingleRequest
	if err := decodeMessage(buf[1:], &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeRestoreReply serializes a RestoreReply for transport send.
func EncodeRestoreReply(m *RestoreReply) ([]byte, error) {
	return encodeMessage(wireRestoreReply, m)
}

// DecodeRestoreReply parses bytes produced by EncodeRestoreReply.
func DecodeRestoreReply(buf []byte) (*RestoreReply, error) {
	if len(buf) < 1 || wireType(buf[0]) != wireRestoreReply {
		return nil, fmt.Errorf("exchange: not a restore-reply")
	}
	var m RestoreReply
	if err := decodeMessage(buf[1:], &m); err != nil {
		return nil, err
	}
	return &m, nil
}
