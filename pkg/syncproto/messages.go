// Package syncproto implements the reconciliation protocol between two
// divergent event logs: scope negotiation, bloom-filter inventory exchange,
// want/have trimming, event transfer, and causal-order conflict detection.
// Sync reads and writes stores only through their public append/query
// surface, so store invariants hold for synced events exactly as for local
// ones.
package syncproto

import (
	"github.com/substratelabs/substrate/pkg/event"
)

// MessageType enumerates the protocol vocabulary.
type MessageType string

const (
	MsgScope    MessageType = "SCOPE"
	MsgScopeAck MessageType = "SCOPE_ACK"
	MsgInv      MessageType = "INV"
	MsgHave     MessageType = "HAVE"
	MsgWant     MessageType = "WANT"
	MsgSend     MessageType = "SEND"
	MsgAck      MessageType = "ACK"
	MsgRefuse   MessageType = "REFUSE"
	MsgConflict MessageType = "CONFLICT"
)

// ScopePayload opens a session: what to sync and under which protocol.
type ScopePayload struct {
	Workspace       string   `json:"workspace"`
	Frames          []string `json:"frames,omitempty"`
	Horizon         string   `json:"horizon,omitempty"`
	ProtocolVersion string   `json:"protocolVersion"`
}

// InventoryPayload summarizes one side's log: definite heads plus a bloom
// filter over all event ids.
type InventoryPayload struct {
	Heads       []string `json:"heads"`
	Count       int      `json:"count"`
	BloomFilter string   `json:"bloomFilter"`
}

// Conflict records two concurrent children of a shared parent. Both events
// stay in the log; conflicts are surfaced, never resolved silently.
type Conflict struct {
	LocalEvent   string `json:"localEvent"`
	RemoteEvent  string `json:"remoteEvent"`
	CommonParent string `json:"commonParent"`
}

// Message is the wire envelope. Exactly the fields relevant to Type are
// populated.
type Message struct {
	Type      MessageType       `json:"type"`
	Scope     *ScopePayload     `json:"scope,omitempty"`
	Inventory *InventoryPayload `json:"inventory,omitempty"`
	IDs       []string          `json:"ids,omitempty"`
	Events    []*event.Event    `json:"events,omitempty"`
	Conflicts []Conflict        `json:"conflicts,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}
