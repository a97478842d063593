package capture

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Replay is a Source backed by a fixed, in-memory packet sequence —
// used by orchestrator tests and for replaying a saved capture file
// without a live sniffer attached.
type Replay struct {
	packets []Packet
	ch      chan Packet
}

// NewReplay returns a Replay that streams packets in order, once, then
// closes its channel.
func NewReplay(packets []Packet) *Replay {
	r := &Replay{packets: packets, ch: make(chan Packet, len(packets))}
	for _, p := range packets {
		r.ch <- p
	}
	close(r.ch)
	return r
}

// Packets implements Source.
func (r *Replay) Packets() <-chan Packet {
	return r.ch
}

// replayRecord is the on-disk shape of one saved packet: a JSON array of
// these is what LoadReplayFile reads. Framing/decoding the live wire
// protocol into this shape is out of scope; this only loads a capture
// someone already saved in it.
type replayRecord struct {
	OpCode     uint16 `json:"op_code"`
	PayloadHex string `json:"payload_hex"`
}

// LoadReplayFile reads a JSON array of {op_code, payload_hex} records
// from path and returns the equivalent Packet slice, ready for NewReplay.
func LoadReplayFile(path string) ([]Packet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading replay file %s: %w", path, err)
	}

	var records []replayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing replay file %s: %w", path, err)
	}

	packets := make([]Packet, len(records))
	for i, rec := range records {
		payload, err := hex.DecodeString(rec.PayloadHex)
		if err != nil {
			return nil, fmt.Errorf("decoding payload hex at record %d: %w", i, err)
		}
		packets[i] = Packet{OpCode: rec.OpCode, Payload: payload}
	}
	return packets, nil
}

// Idle is a Source that never produces a packet and never closes its
// channel — a placeholder for a daemon run started without a capture
// feed wired in yet (live capture/decoding is out of this repo's scope;
// see the package doc). The orchestrator blocks on it until ctx is
// canceled, exactly like blocking on a live feed with no traffic.
type Idle struct {
	ch chan Packet
}

// NewIdle returns an Idle source.
func NewIdle() *Idle {
	return &Idle{ch: make(chan Packet)}
}

// Packets implements Source.
func (i *Idle) Packets() <-chan Packet {
	return i.ch
}
